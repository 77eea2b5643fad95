package logx

import (
	"bytes"
	"strings"
	"testing"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, LevelInfo)

	l.Debug("should not appear")
	l.Info("hello %d", 42)

	out := buf.String()
	if strings.Contains(out, "should not appear") {
		t.Errorf("Debug message leaked through at LevelInfo: %q", out)
	}
	if !strings.Contains(out, "hello 42") {
		t.Errorf("Info message missing: %q", out)
	}
}

func TestCcForwarding(t *testing.T) {
	var primary, secondary bytes.Buffer
	l := New(&primary, LevelDebug)
	l.Cc(New(&secondary, LevelDebug))

	l.Debug("fan out")

	if !strings.Contains(primary.String(), "fan out") {
		t.Errorf("primary logger missing message")
	}
	if !strings.Contains(secondary.String(), "fan out") {
		t.Errorf("cc logger missing message")
	}
}

func TestNilLoggerIsSafe(t *testing.T) {
	var l *Logger
	l.Info("noop")
	l.Error("still noop")
}

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("debug")
	if err != nil || lvl != LevelDebug {
		t.Errorf("ParseLevel(\"debug\") = (%v, %v)", lvl, err)
	}

	if _, err := ParseLevel("bogus"); err == nil {
		t.Errorf("ParseLevel(\"bogus\") should fail")
	}
}
