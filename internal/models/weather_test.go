package models

import (
	"testing"

	"github.com/jmoiron/sqlx/types"
)

func TestSlugify(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "simple", in: "Port Vila", want: "port-vila"},
		{name: "extra spacing", in: "  Luganville   ", want: "luganville"},
		{name: "punctuation", in: "Sola (Vanua Lava)", want: "sola-vanua-lava"},
		{name: "diacritics", in: "Lénakel", want: "lenakel"},
		{name: "already slug", in: "white-sands", want: "white-sands"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Slugify(tt.in); got != tt.want {
				t.Errorf("Slugify(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNewLocation(t *testing.T) {
	loc, err := NewLocation(" Port Vila ", -17.73, 168.32)
	if err != nil {
		t.Fatalf("NewLocation() error = %v", err)
	}
	if loc.Name != "Port Vila" {
		t.Errorf("Name = %q, want %q", loc.Name, "Port Vila")
	}
	if loc.Slug != "port-vila" {
		t.Errorf("Slug = %q, want %q", loc.Slug, "port-vila")
	}
	if loc.Latitude != -17.73 || loc.Longitude != 168.32 {
		t.Errorf("coordinates = (%v, %v)", loc.Latitude, loc.Longitude)
	}

	if _, err := NewLocation("   ", 0, 0); err == nil {
		t.Error("NewLocation() with blank name should fail")
	} else if verr, ok := err.(*ValidationError); !ok || verr.IsTransient() {
		t.Errorf("expected permanent ValidationError, got %T", err)
	}
}

func TestPageError_ComputeFingerprint(t *testing.T) {
	hash := "abc123"
	base := func() *PageError {
		return &PageError{
			URL:         "https://example.test/forecast-division",
			Description: ErrorDataNotValid,
			Exception:   "validation failed",
			HTMLHash:    &hash,
			RawPayload:  types.NullJSONText{JSONText: types.JSONText(`[1,2]`), Valid: true},
		}
	}

	a := base().ComputeFingerprint()
	b := base().ComputeFingerprint()
	if a != b {
		t.Fatalf("identical errors produced different fingerprints: %s != %s", a, b)
	}

	changed := base()
	changed.Errors = types.NullJSONText{JSONText: types.JSONText(`["field"]`), Valid: true}
	if changed.ComputeFingerprint() == a {
		t.Error("fingerprint ignored the errors field")
	}

	noHTML := base()
	noHTML.HTMLHash = nil
	if noHTML.ComputeFingerprint() == a {
		t.Error("fingerprint ignored the html hash")
	}

	emptyHash := ""
	emptyHTML := base()
	emptyHTML.HTMLHash = &emptyHash
	if emptyHTML.ComputeFingerprint() == noHTML.ComputeFingerprint() {
		t.Error("nil and empty html hash must differ")
	}
}

func TestParseSessionKind(t *testing.T) {
	for _, kind := range AllSessionKinds {
		got, ok := ParseSessionKind(string(kind))
		if !ok || got != kind {
			t.Errorf("ParseSessionKind(%q) = %q, %v", kind, got, ok)
		}
	}
	if _, ok := ParseSessionKind("forecast_unknown"); ok {
		t.Error("unknown kind accepted")
	}
}
