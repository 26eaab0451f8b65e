// Package applog is the server's diagnostic logger: a small level-gated
// wrapper around the standard library's log.Logger, queued through a
// channel the way gorox's hemi/internal/logger.go buffers log lines off
// the hot path. No third-party logging library is used here - see
// DESIGN.md for why.
package applog

import (
	"fmt"
	"log"
	"os"
)

// Level selects which messages reach the output. It maps directly onto
// the CLI's "-l:N" flag from spec.md §6.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelError
)

func ParseLevel(n int) (Level, bool) {
	switch n {
	case 0:
		return LevelDebug, true
	case 1:
		return LevelInfo, true
	case 2:
		return LevelError, true
	default:
		return LevelInfo, false
	}
}

// Logger serializes log lines from any goroutine onto one background
// writer goroutine, so the event loop never blocks on stderr I/O.
type Logger struct {
	level Level
	std   *log.Logger
	lines chan string
	done  chan struct{}
}

// New creates a Logger writing to os.Stderr at the given level. Call Close to flush and stop the background writer.
func New(level Level) *Logger {
	l := &Logger{
		level: level,
		std:   log.New(os.Stderr, "", log.Ldate|log.Ltime|log.Lmicroseconds),
		lines: make(chan string, 256),
		done:  make(chan struct{}),
	}
	go l.saver()
	return l
}

func (l *Logger) saver() {
	for line := range l.lines {
		l.std.Print(line)
	}
	close(l.done)
}

func (l *Logger) enqueue(level Level, s string) {
	if level < l.level {
		return
	}
	select {
	case l.lines <- s:
	default:
		// Queue full: drop rather than block the event loop.
	}
}

func (l *Logger) Debugf(format string, args ...any) { l.enqueue(LevelDebug, "[DEBUG] "+fmt.Sprintf(format, args...)) }
func (l *Logger) Infof(format string, args ...any)  { l.enqueue(LevelInfo, "[INFO] "+fmt.Sprintf(format, args...)) }
func (l *Logger) Errorf(format string, args ...any) { l.enqueue(LevelError, "[ERROR] "+fmt.Sprintf(format, args...)) }

// Close drains the queue and stops the background writer.
func (l *Logger) Close() {
	close(l.lines)
	<-l.done
}
