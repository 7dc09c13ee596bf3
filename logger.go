package casseq

// Fields carries structured context for log lines.
type Fields map[string]any

// Logger is the minimal logging surface the generator writes to. Adapters
// for logrus, zap and slog live under log/; any other stack needs only
// these four methods. A nil Options.Logger disables logging.
type Logger interface {
	Debug(msg string, fields Fields)
	Info(msg string, fields Fields)
	Warn(msg string, fields Fields)
	Error(msg string, fields Fields)
}

// NopLogger drops everything.
type NopLogger struct{}

func (NopLogger) Debug(string, Fields) {}
func (NopLogger) Info(string, Fields)  {}
func (NopLogger) Warn(string, Fields)  {}
func (NopLogger) Error(string, Fields) {}
