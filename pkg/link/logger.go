package link

import (
	"log"
	"os"
)

// Logger is the ambient logging sink the connection manager reports framing
// and transport errors through. Logging sinks are an external collaborator
// (spec.md §1): the library depends only on this interface and falls back
// to a stderr logger only when the caller supplies none, matching the teacher's plain log.Printf
// calls throughout pkg/usock and pkg/redis.
type Logger interface {
	Printf(format string, args ...any)
}

// stdLogger adapts the standard library logger to Logger. It is the
// default used when Options.Logger is nil.
type stdLogger struct {
	*log.Logger
}

func newStdLogger() Logger {
	return stdLogger{log.New(os.Stderr, "", log.LstdFlags|log.Lmicroseconds)}
}

// discardLogger silently drops every message. Useful in tests.
type discardLogger struct{}

func (discardLogger) Printf(string, ...any) {}
