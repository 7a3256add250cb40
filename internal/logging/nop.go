package logging

import "github.com/arloliu/livequery/types"

// NopLogger drops every entry. It is the default when no logger option is given.
type NopLogger struct{}

var _ types.Logger = (*NopLogger)(nil)

// NewNop returns a logger that discards everything.
func NewNop() *NopLogger {
	return &NopLogger{}
}

func (*NopLogger) Debug(string, ...any) {}
func (*NopLogger) Info(string, ...any) {}
func (*NopLogger) Warn(string, ...any) {}
func (*NopLogger) Error(string, ...any) {}

// Fatal discards the entry; it never exits.
func (*NopLogger) Fatal(string, ...any) {}
