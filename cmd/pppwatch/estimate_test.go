package main

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rewired-gh/pppwatch/internal/estimator"
	"github.com/rewired-gh/pppwatch/internal/export"
	"github.com/rewired-gh/pppwatch/internal/models"
)

func TestWriterFor(t *testing.T) {
	for _, format := range []string{"text", "csv", "xlsx"} {
		if w, err := writerFor(format); err != nil || w == nil {
			t.Errorf("writerFor(%q): non-nil = %t, err = %v", format, w != nil, err)
		}
	}
	if _, err := writerFor("pdf"); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestWriteText(t *testing.T) {
	frame, err := estimator.Estimate(
		models.Series{2000: 100, 2001: 110},
		models.Series{2000: 100, 2001: 105},
		models.Series{2000: 20, 2001: 23},
	)
	if err != nil {
		t.Fatalf("Estimate: %v", err)
	}

	var buf bytes.Buffer
	if err := writeText(&buf, frame); err != nil {
		t.Fatalf("writeText: %v", err)
	}
	out := buf.String()
	lines := strings.Split(out, "\n")

	if !strings.Contains(lines[0], "estimate_high") {
		t.Errorf("header = %q", lines[0])
	}
	// First row has no band yet
	if !strings.Contains(lines[1], "2000") || !strings.Contains(lines[1], "-") {
		t.Errorf("first row = %q", lines[1])
	}
	if !strings.Contains(lines[1], "20.0000") {
		t.Errorf("first row missing estimate: %q", lines[1])
	}
	if !strings.Contains(out, "Latest 2001: rate 23.0000") {
		t.Errorf("missing summary line:\n%s", out)
	}
}

func TestWriteFile(t *testing.T) {
	frame, err := estimator.Estimate(
		models.Series{2000: 100, 2001: 110},
		models.Series{2000: 100, 2001: 105},
		models.Series{2000: 20, 2001: 23},
	)
	if err != nil {
		t.Fatalf("Estimate: %v", err)
	}
	dir := t.TempDir()

	path := filepath.Join(dir, "frame.csv")
	if err := writeFile(path, export.WriteCSV, frame); err != nil {
		t.Fatalf("writeFile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if lines := strings.Split(strings.TrimSpace(string(data)), "\n"); len(lines) != 3 {
		t.Errorf("got %d lines, want header and 2 rows", len(lines))
	}

	failed := errors.New("encoder failed")
	err = writeFile(filepath.Join(dir, "broken.csv"), func(io.Writer, *models.Frame) error { return failed }, frame)
	if !errors.Is(err, failed) {
		t.Errorf("writeFile error = %v, want %v", err, failed)
	}

	if err := writeFile(filepath.Join(dir, "missing", "frame.csv"), export.WriteCSV, frame); err == nil {
		t.Error("expected error for a missing directory")
	}
}

func TestNewServiceFromDefaults(t *testing.T) {
	configPath = ""
	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	svc := newService(cfg, nil)
	if svc.Pair().CountryA != "uy" || svc.Pair().StartYear != 1960 {
		t.Errorf("pair = %+v", svc.Pair())
	}
	if svc.Latest() != nil {
		t.Error("new service should have no frame")
	}
}
