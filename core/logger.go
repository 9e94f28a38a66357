package core

// Logger is any service that can log app messages.
// Extra args may carry errors, maps or the acting user for context.
type Logger interface {
	Enable(enabled bool)
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
}
