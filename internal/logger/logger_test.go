package logger

import (
	"bytes"
	"strings"
	"testing"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "warn", "json")
	t.Cleanup(func() { InitWithWriter(&bytes.Buffer{}, "info", "json") })

	Info("hidden %d", 1)
	Warn("shown %d", 2)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info line written at warn level: %s", out)
	}
	if !strings.Contains(out, `"message":"shown 2"`) || !strings.Contains(out, `"level":"warn"`) {
		t.Errorf("missing warn line: %s", out)
	}
}

func TestTextFormat(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "debug", "text")
	t.Cleanup(func() { InitWithWriter(&bytes.Buffer{}, "info", "json") })

	Debug("refresh took %s", "3ms")
	if !strings.Contains(buf.String(), "refresh took 3ms") {
		t.Errorf("unexpected output: %q", buf.String())
	}
	if strings.HasPrefix(strings.TrimSpace(buf.String()), "{") {
		t.Error("text format produced JSON")
	}
}
