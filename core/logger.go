package core

// Logger is implemented by every logging backend the services can report to.
// args may carry an error, a map[string]interface{} of extra data and the user involved.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}
