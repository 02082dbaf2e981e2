package monitoring

import "log"

// Logf is the package-level diagnostic logger. It defaults to log.Printf but
// may be replaced with SetLogger so tests can capture or mute output.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil installs a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// NodeLogf logs a line prefixed with the originating node identifier, the
// convention used throughout the coordinator for per-node diagnostics.
func NodeLogf(node string, format string, v ...interface{}) {
	Logf("["+node+"] "+format, v...)
}
