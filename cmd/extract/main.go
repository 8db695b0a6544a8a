// Command extract runs the page extractors over saved HTML files without a
// database or network. Each file is matched to a page by its base name, the
// same name the debug page cache writes (e.g. "7-day.html" or "7-day").
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"vmgd-scraper/internal/config"
	"vmgd-scraper/internal/models"
	"vmgd-scraper/internal/scraper"
	"vmgd-scraper/internal/services"
	"vmgd-scraper/pkg/logging"
)

type report struct {
	File     string           `json:"file"`
	Page     scraper.PageKind `json:"page,omitempty"`
	IssuedAt *time.Time       `json:"issued_at,omitempty"`
	Payload  interface{}      `json:"payload,omitempty"`
	Code     models.ErrorCode `json:"code,omitempty"`
	Error    string           `json:"error,omitempty"`
	Issues   interface{}      `json:"issues,omitempty"`
}

func main() {
	page := flag.String("page", "", "Page kind for every file (default: derived from each file name)")
	flag.Parse()

	logger := logging.NewStructuredLogger("vmgd-extract", config.Version, logging.WarnLevel)
	ctx := context.Background()

	files, err := collect(flag.Args())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading input: %v\n", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "Usage: extract [-page kind] <file.html|dir>...")
		os.Exit(2)
	}

	registry := scraper.DefaultRegistry()
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	failed := 0
	for _, file := range files {
		r := extractFile(registry, file, scraper.PageKind(*page))
		if r.Error != "" {
			failed++
			logger.Warn(ctx, "[EXTRACT_FAILED] Extraction failed", logging.Fields{
				"file": file,
				"code": r.Code,
			})
		}
		if err := enc.Encode(r); err != nil {
			logger.Error(ctx, "[EXTRACT_ENCODE_ERROR] Could not encode result", logging.Fields{
				"file": file,
			}, err)
			failed++
		}
	}

	if failed > 0 {
		os.Exit(1)
	}
}

// collect expands directories into their .html files.
func collect(args []string) ([]string, error) {
	var files []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, arg)
			continue
		}
		matches, err := filepath.Glob(filepath.Join(arg, "*.html"))
		if err != nil {
			return nil, err
		}
		files = append(files, matches...)
	}
	return files, nil
}

func extractFile(registry *scraper.Registry, file string, kind scraper.PageKind) report {
	r := report{File: file}

	if kind == "" {
		slug := strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
		spec, ok := scraper.SpecForSlug(slug)
		if !ok {
			r.Error = fmt.Sprintf("no page matches file name %q", slug)
			return r
		}
		kind = spec.Kind
	}
	r.Page = kind

	content, err := os.ReadFile(file)
	if err != nil {
		r.Error = err.Error()
		return r
	}

	extraction, err := registry.Extract(kind, string(content))
	if !extraction.IssuedAt.IsZero() {
		issued := extraction.IssuedAt
		r.IssuedAt = &issued
	}
	r.Payload = extraction.Payload
	if err != nil {
		r.Code = services.Classify(services.StageExtract, err)
		r.Error = err.Error()
		var scrapeErr *scraper.ScrapingError
		if errors.As(err, &scrapeErr) {
			r.Issues = scrapeErr.Errors
		}
	}
	return r
}
