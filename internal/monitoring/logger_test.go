package monitoring

import (
	"fmt"
	"strings"
	"testing"
)

func TestSetLoggerCapture(t *testing.T) {
	defer SetLogger(nil)

	var lines []string
	SetLogger(func(format string, v ...interface{}) {
		lines = append(lines, fmt.Sprintf(format, v...))
	})

	Logf("hello %d", 42)
	if len(lines) != 1 || lines[0] != "hello 42" {
		t.Errorf("captured %v, want [hello 42]", lines)
	}
}

func TestSetLoggerNilMutes(t *testing.T) {
	SetLogger(nil)
	// Must not panic.
	Logf("dropped %s", "line")
	SetLogger(func(string, ...interface{}) {})
}

func TestNodeLogfPrefix(t *testing.T) {
	defer SetLogger(nil)

	var got string
	SetLogger(func(format string, v ...interface{}) {
		got = fmt.Sprintf(format, v...)
	})

	NodeLogf("cam-1.local", "state now %s", "Connected")
	if !strings.HasPrefix(got, "[cam-1.local] ") {
		t.Errorf("got %q, want node prefix", got)
	}
}
