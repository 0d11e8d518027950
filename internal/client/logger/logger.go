// Package logger is the relay's process-wide log sink. Lines go to the
// standard logger, or to the events bus while the TUI owns the terminal.
package logger

import (
	"fmt"
	"io"
	"log"
	"strings"
	"sync"

	"bemfarelay/internal/client/events"
)

// Level orders log severities.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

// ParseLevel accepts debug, info, warn (or warning) and error.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	}
	return LevelInfo, fmt.Errorf("unknown log level %q", s)
}

type sink struct {
	mu       sync.RWMutex
	eventBus *events.Bus
	tuiMode  bool
	level    Level
	restore  io.Writer
}

var std = &sink{level: LevelInfo}

// SetEventBus sets the bus that receives lines in TUI mode.
func SetEventBus(bus *events.Bus) {
	std.mu.Lock()
	defer std.mu.Unlock()
	std.eventBus = bus
}

// SetLevel drops lines below l.
func SetLevel(l Level) {
	std.mu.Lock()
	defer std.mu.Unlock()
	std.level = l
}

// SetDebug switches between LevelDebug and LevelInfo.
func SetDebug(enabled bool) {
	if enabled {
		SetLevel(LevelDebug)
	} else {
		SetLevel(LevelInfo)
	}
}

// SetTUIMode routes lines to the events bus and silences the standard
// logger so nothing paints over the TUI. Disabling restores its writer.
func SetTUIMode(enabled bool) {
	std.mu.Lock()
	defer std.mu.Unlock()
	if enabled == std.tuiMode {
		return
	}
	std.tuiMode = enabled

	if enabled {
		std.restore = log.Writer()
		log.SetOutput(io.Discard)
	} else if std.restore != nil {
		log.SetOutput(std.restore)
		std.restore = nil
	}
}

// Debug logs wire-level detail.
func Debug(format string, args ...interface{}) { std.log(LevelDebug, format, args...) }

// Info logs an informational message.
func Info(format string, args ...interface{}) { std.log(LevelInfo, format, args...) }

// Warn logs a recoverable problem.
func Warn(format string, args ...interface{}) { std.log(LevelWarn, format, args...) }

// Error logs a failure.
func Error(format string, args ...interface{}) { std.log(LevelError, format, args...) }

func (s *sink) log(level Level, format string, args ...interface{}) {
	s.mu.RLock()
	min, tuiMode, bus := s.level, s.tuiMode, s.eventBus
	s.mu.RUnlock()

	if level < min {
		return
	}
	message := fmt.Sprintf(format, args...)
	if tuiMode && bus != nil {
		bus.PublishLog(level.String(), message)
		return
	}
	log.Printf("[%s] %s", level, message)
}
