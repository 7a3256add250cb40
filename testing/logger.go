package testing

import (
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/arloliu/livequery/types"
)

// TestLogger writes to the testing.T logger and records every message.
type TestLogger struct {
	t *testing.T

	mu      sync.Mutex
	entries []string
}

var _ types.Logger = (*TestLogger)(nil)

// NewTestLogger creates a new logger instance that writes to the testing.T logger.
// This is useful for seeing log output during test runs and asserting on it.
func NewTestLogger(t *testing.T) *TestLogger {
	return &TestLogger{t: t}
}

func (l *TestLogger) record(level, msg string, keysAndValues []any) {
	line := fmt.Sprintf("%s: %s %v", level, msg, keysAndValues)

	l.mu.Lock()
	l.entries = append(l.entries, line)
	l.mu.Unlock()

	l.t.Log(line)
}

// Entries returns a copy of every recorded line, formatted as "LEVEL: msg [kv...]".
func (l *TestLogger) Entries() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]string, len(l.entries))
	copy(out, l.entries)

	return out
}

// Contains reports whether any recorded line contains substr.
func (l *TestLogger) Contains(substr string) bool {
	for _, e := range l.Entries() {
		if strings.Contains(e, substr) {
			return true
		}
	}

	return false
}

func (l *TestLogger) Debug(msg string, keysAndValues ...any) {
	l.record("DEBUG", msg, keysAndValues)
}

func (l *TestLogger) Info(msg string, keysAndValues ...any) {
	l.record("INFO", msg, keysAndValues)
}

func (l *TestLogger) Warn(msg string, keysAndValues ...any) {
	l.record("WARN", msg, keysAndValues)
}

func (l *TestLogger) Error(msg string, keysAndValues ...any) {
	l.record("ERROR", msg, keysAndValues)
}

func (l *TestLogger) Fatal(msg string, keysAndValues ...any) {
	l.record("FATAL", msg, keysAndValues)
	l.t.FailNow()
}
