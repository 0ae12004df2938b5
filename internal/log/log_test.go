package log

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() {
		SetLevel(LevelInfo)
	})
	return &buf
}

func TestLineFormat(t *testing.T) {
	buf := capture(t)
	SetLevel(LevelInfo)
	Info("panel ready", "width", 480, "timing", "480x480 h(10/40/8)")

	line := buf.String()
	if !strings.Contains(line, " [INFO] panel ready width=480 ") {
		t.Errorf("line = %q", line)
	}
	if !strings.Contains(line, `timing="480x480 h(10/40/8)"`) {
		t.Errorf("value with spaces not quoted: %q", line)
	}
}

func TestLevels(t *testing.T) {
	buf := capture(t)
	SetLevel(LevelWarn)
	Debug("d")
	Info("i")
	Warn("w")
	Error("e", errors.New("boom"), "step", "reset")

	out := buf.String()
	if strings.Contains(out, "[DEBUG]") || strings.Contains(out, "[INFO]") {
		t.Errorf("filtered levels logged: %q", out)
	}
	if !strings.Contains(out, "[WARN] w") {
		t.Errorf("warn missing: %q", out)
	}
	if !strings.Contains(out, "[ERROR] e err=boom step=reset") {
		t.Errorf("error line: %q", out)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]Level{
		"debug":   LevelDebug,
		"INFO":    LevelInfo,
		"":        LevelInfo,
		"warning": LevelWarn,
		" error ": LevelError,
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		if err != nil || got != want {
			t.Errorf("ParseLevel(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseLevel("verbose"); err == nil {
		t.Error("expected error")
	}
}

func TestOddKVIgnored(t *testing.T) {
	buf := capture(t)
	Info("x", "a", 1, "dangling")
	if strings.Contains(buf.String(), "dangling") {
		t.Errorf("line = %q", buf.String())
	}
}

func TestCronLogger(t *testing.T) {
	buf := capture(t)
	SetLevel(LevelDebug)
	l := CronLogger()
	l.Info("schedule", "entry", 1)
	l.Error(errors.New("bad schedule"), "add")
	out := buf.String()
	if !strings.Contains(out, "[DEBUG] cron: schedule entry=1") || !strings.Contains(out, "[ERROR] cron: add err=\"bad schedule\"") {
		t.Errorf("out = %q", out)
	}
}
