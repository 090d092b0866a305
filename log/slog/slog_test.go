package slog

import (
	"bytes"
	stdslog "log/slog"
	"strings"
	"testing"

	"github.com/unkn0wn-root/easycache"
)

func TestLoggerLevelsAndOrder(t *testing.T) {
	var buf bytes.Buffer
	l := Logger{L: stdslog.New(stdslog.NewTextHandler(&buf, &stdslog.HandlerOptions{Level: stdslog.LevelInfo}))}

	l.Debug("dropped", easycache.Fields{"x": 1})
	l.Info("bloom filter created", easycache.Fields{"ns": "users", "k": 7, "bitSize": 9586})

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Fatalf("debug entry should be filtered: %s", out)
	}
	// keys are sorted: bitSize, k, ns
	if i, j := strings.Index(out, "bitSize="), strings.Index(out, "ns="); i < 0 || j < 0 || i > j {
		t.Fatalf("expected sorted attrs: %s", out)
	}
}
