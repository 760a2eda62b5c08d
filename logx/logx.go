// Package logx wraps the standard log package with leveled prefixes.
// Components that log (BlockStore, DataMover, HeartbeatChecker) take a
// *logx.Logger explicitly in their constructor or options rather than
// reaching for a process-wide singleton, per this project's
// ambient-state convention.
package logx

import (
	"io"
	"log"
	"os"
)

type Logger struct {
	base *log.Logger
	name string
}

// New builds a Logger writing to stderr, tagged with name (typically
// the owning component: "blockstore", "inodetree", ...).
func New(name string) *Logger {
	return &Logger{base: log.New(os.Stderr, "", log.LstdFlags|log.Lmicroseconds), name: name}
}

// Nop returns a Logger that discards everything; useful in tests.
func Nop() *Logger {
	return &Logger{base: log.New(io.Discard, "", 0), name: "nop"}
}

func (l *Logger) Infof(format string, args ...any)  { l.printf("INFO", format, args...) }
func (l *Logger) Warnf(format string, args ...any)  { l.printf("WARN", format, args...) }
func (l *Logger) Debugf(format string, args ...any) { l.printf("DEBUG", format, args...) }

func (l *Logger) printf(level, format string, args ...any) {
	l.base.Printf("["+level+"] "+l.name+": "+format, args...)
}
