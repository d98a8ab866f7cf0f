package logging

import (
	"fmt"
	"os"
)

// EarlyLog covers the window before the zap logger exists, when config
// loading itself can fail.
type EarlyLog struct{}

func NewEarlyLog() *EarlyLog {
	return &EarlyLog{}
}

// Error prints to stderr and exits. Startup cannot continue without a
// usable config and logger.
func (l *EarlyLog) Error(msg string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "ERROR: "+msg+"\n", args...)
	os.Exit(1)
}

func (l *EarlyLog) Warn(msg string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "WARN: "+msg+"\n", args...)
}
