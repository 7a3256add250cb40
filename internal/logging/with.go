package logging

import "github.com/arloliu/livequery/types"

// fieldLogger prepends fixed key-value pairs to every log call.
type fieldLogger struct {
	base   types.Logger
	fields []any
}

var _ types.Logger = (*fieldLogger)(nil)

// With returns a logger that adds keysAndValues to every message logged through it.
//
// Used to scope a shared client logger to one query instance.
//
// Example:
//
//	qlog := logging.With(logger, "query_id", id)
//	qlog.Info("subscribed", "descriptor", d)
func With(base types.Logger, keysAndValues ...any) types.Logger {
	if len(keysAndValues) == 0 {
		return base
	}
	if fl, ok := base.(*fieldLogger); ok {
		fields := make([]any, 0, len(fl.fields)+len(keysAndValues))
		fields = append(fields, fl.fields...)
		fields = append(fields, keysAndValues...)

		return &fieldLogger{base: fl.base, fields: fields}
	}

	return &fieldLogger{base: base, fields: keysAndValues}
}

func (l *fieldLogger) merge(keysAndValues []any) []any {
	out := make([]any, 0, len(l.fields)+len(keysAndValues))
	out = append(out, l.fields...)

	return append(out, keysAndValues...)
}

func (l *fieldLogger) Debug(msg string, keysAndValues ...any) {
	l.base.Debug(msg, l.merge(keysAndValues)...)
}

func (l *fieldLogger) Info(msg string, keysAndValues ...any) {
	l.base.Info(msg, l.merge(keysAndValues)...)
}

func (l *fieldLogger) Warn(msg string, keysAndValues ...any) {
	l.base.Warn(msg, l.merge(keysAndValues)...)
}

func (l *fieldLogger) Error(msg string, keysAndValues ...any) {
	l.base.Error(msg, l.merge(keysAndValues)...)
}

func (l *fieldLogger) Fatal(msg string, keysAndValues ...any) {
	l.base.Fatal(msg, l.merge(keysAndValues)...)
}
