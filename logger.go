package easycache

// Fields carries structured context for a log line: lock and key names,
// counts, durations and errors (under "err").
type Fields map[string]any

// Logger is what every component logs through. Adapters for zap, logrus and
// slog live under log/. A nil Logger in any options struct disables logging.
type Logger interface {
	Debug(msg string, f Fields)
	Info(msg string, f Fields)
	Warn(msg string, f Fields)
	Error(msg string, f Fields)
}

type NopLogger struct{}

func (NopLogger) Debug(string, Fields) {}
func (NopLogger) Info(string, Fields)  {}
func (NopLogger) Warn(string, Fields)  {}
func (NopLogger) Error(string, Fields) {}
