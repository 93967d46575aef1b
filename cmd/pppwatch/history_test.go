package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rewired-gh/pppwatch/internal/estimator"
	"github.com/rewired-gh/pppwatch/internal/models"
	"github.com/rewired-gh/pppwatch/internal/storage"
)

func newHistoryStore(t *testing.T) *storage.Storage {
	t.Helper()
	store, err := storage.New(5, ":memory:")
	if err != nil {
		t.Fatalf("storage.New: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	frame, err := estimator.Estimate(
		models.Series{2000: 100, 2001: 110},
		models.Series{2000: 100, 2001: 105},
		models.Series{2000: 20, 2001: 23},
	)
	if err != nil {
		t.Fatalf("Estimate: %v", err)
	}
	for i := 0; i < 2; i++ {
		if _, err := store.SaveFrame("uy/us", frame); err != nil {
			t.Fatalf("SaveFrame: %v", err)
		}
	}
	return store
}

func TestPrintHistory(t *testing.T) {
	store := newHistoryStore(t)

	var buf bytes.Buffer
	if err := printHistory(&buf, store, "uy/us"); err != nil {
		t.Fatalf("printHistory: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want header and 2 frames:\n%s", len(lines), buf.String())
	}
	if !strings.HasPrefix(lines[0], "computed_at") {
		t.Errorf("header = %q", lines[0])
	}
	if !strings.Contains(lines[1], "2000") || !strings.Contains(lines[1], "2001") {
		t.Errorf("row = %q", lines[1])
	}

	buf.Reset()
	if err := printHistory(&buf, store, "ar/us"); err != nil {
		t.Fatalf("printHistory: %v", err)
	}
	if got := buf.String(); got != "No stored frames for ar/us\n" {
		t.Errorf("empty history = %q", got)
	}
}

func TestClearHistory(t *testing.T) {
	store := newHistoryStore(t)

	var buf bytes.Buffer
	if err := clearHistory(&buf, store, "uy/us"); err != nil {
		t.Fatalf("clearHistory: %v", err)
	}
	if got := buf.String(); got != "Deleted 2 frames for uy/us\n" {
		t.Errorf("output = %q", got)
	}
	frames, err := store.FrameHistory("uy/us")
	if err != nil {
		t.Fatalf("FrameHistory: %v", err)
	}
	if len(frames) != 0 {
		t.Errorf("%d frames left after clear", len(frames))
	}
}

func TestClearRequiresConfirmation(t *testing.T) {
	cmd := newClearCmd()
	cmd.SetArgs(nil)
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	err := cmd.Execute()
	if err == nil || !strings.Contains(err.Error(), "--yes") {
		t.Errorf("Execute() error = %v, want a confirmation error", err)
	}
}
