package logx

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestForTagsComponent(t *testing.T) {
	var buf bytes.Buffer
	prev := Level()
	defer SetLevel(prev)

	SetOutput(&buf, FormatJSON)
	SetLevel(slog.LevelDebug)
	For(ComponentXbar).Debug("cmd failed", "port", 1)

	out := buf.String()
	if !strings.Contains(out, `"component":"xbarmux"`) || !strings.Contains(out, `"port":1`) {
		t.Fatalf("unexpected log line: %s", out)
	}
}

func TestLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	prev := Level()
	defer SetLevel(prev)

	SetOutput(&buf, FormatText)
	SetLevel(slog.LevelWarn)
	For(ComponentMux).Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("info should be filtered at warn: %q", buf.String())
	}
}
