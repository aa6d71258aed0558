package logx

import (
	"errors"
	"strings"
	"testing"
)

func TestLoggerBuffersEntries(t *testing.T) {
	logger := NewLogger("test-component")
	logger.Info("hello %s", "world")

	entries := GetRecentLogEntries("test-component")
	if len(entries) == 0 {
		t.Fatal("Expected buffered log entry")
	}

	last := entries[len(entries)-1]
	if last.Message != "hello world" {
		t.Errorf("Message = %q", last.Message)
	}
	if last.Level != string(LevelInfo) {
		t.Errorf("Level = %q", last.Level)
	}
	if last.Component != "test-component" {
		t.Errorf("Component = %q", last.Component)
	}
}

func TestDebugSuppressedByDefault(t *testing.T) {
	SetDebug(false)
	logger := NewLogger("debug-component")
	logger.Debug("should not appear")

	for _, entry := range GetRecentLogEntries("debug-component") {
		if entry.Level == string(LevelDebug) {
			t.Fatal("Debug entry buffered while debug disabled")
		}
	}

	SetDebug(true)
	defer SetDebug(false)
	logger.Debug("now visible")

	found := false
	for _, entry := range GetRecentLogEntries("debug-component") {
		if entry.Level == string(LevelDebug) {
			found = true
		}
	}
	if !found {
		t.Error("Expected debug entry once enabled")
	}
}

func TestWrap(t *testing.T) {
	base := errors.New("disk full")
	wrapped := Wrap(base, "save checkpoint")

	if wrapped == nil {
		t.Fatal("Wrap returned nil for non-nil error")
	}
	if !errors.Is(wrapped, base) {
		t.Error("Wrapped error must unwrap to the original")
	}
	if !strings.Contains(wrapped.Error(), "save checkpoint") {
		t.Errorf("Wrapped message = %q", wrapped.Error())
	}

	if Wrap(nil, "noop") != nil {
		t.Error("Wrap(nil) must return nil")
	}
}

func TestWithComponent(t *testing.T) {
	logger := NewLogger("a")
	derived := logger.WithComponent("b")

	if derived.GetComponent() != "b" {
		t.Errorf("Component = %q", derived.GetComponent())
	}
	if logger.GetComponent() != "a" {
		t.Error("Original logger mutated")
	}
}
