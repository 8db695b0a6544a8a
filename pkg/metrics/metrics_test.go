package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCollector_RecordSession(t *testing.T) {
	c := NewTestCollector()

	c.RecordSession("forecast_general", "completed", 2*time.Second)
	c.RecordSession("forecast_general", "completed", time.Second)
	c.RecordSession("warning_marine", "failed", time.Second)

	assert.InDelta(t, 2, testutil.ToFloat64(c.SessionsTotal.WithLabelValues("forecast_general", "completed")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(c.SessionsTotal.WithLabelValues("warning_marine", "failed")), 0)
}

func TestCollector_RecordPersistedIgnoresEmpty(t *testing.T) {
	c := NewTestCollector()

	c.RecordPersisted("forecast_daily", 0)
	c.RecordPersisted("forecast_daily", 14)

	assert.InDelta(t, 14, testutil.ToFloat64(c.RecordsPersistedTotal.WithLabelValues("forecast_daily")), 0)
}

func TestCollector_SeparateRegistries(t *testing.T) {
	a := NewTestCollector()
	b := NewTestCollector()

	a.RecordPageError("NOT_FOUND")

	assert.InDelta(t, 1, testutil.ToFloat64(a.PageErrorsTotal.WithLabelValues("NOT_FOUND")), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(b.PageErrorsTotal.WithLabelValues("NOT_FOUND")), 0)
}
