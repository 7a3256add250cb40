package types

// Logger is the structured logger used by clients, stores and backups.
//
// Fields are passed as alternating key/value pairs, the convention shared by
// zap's SugaredLogger and log/slog. Adapters live in internal/logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)

	// Fatal logs at the highest level. Implementations may terminate the process;
	// library code in this module never calls it.
	Fatal(msg string, keysAndValues ...any)
}
