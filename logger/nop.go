package logger

type nopLogger struct{}

// NewNop returns a no-op Logger that discards all messages. Useful in tests
// and as a placeholder when logging is unwanted.
func NewNop() Logger {
	return nopLogger{}
}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
func (nopLogger) Fatal(string, ...any) {}

func (n nopLogger) With(...any) Logger { return n }

func (nopLogger) Level() Level   { return FatalLevel }
func (nopLogger) SetLevel(Level) {}
