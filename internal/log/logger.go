// SPDX-License-Identifier: MIT
//
// Package log is a small leveled logger shared by every component. The level
// is global and can be changed at runtime; component loggers returned by
// Named only add a prefix.
package log

import (
	"fmt"
	"io"
	stdlog "log"
	"os"
	"strings"
	"sync/atomic"
)

// LogLevel defines the severity of a log message.
type LogLevel uint32

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

var levelNames = [...]string{"DEBUG", "INFO", "WARN", "ERROR", "FATAL"}

func (l LogLevel) String() string {
	if int(l) < len(levelNames) {
		return levelNames[l]
	}
	return "UNKNOWN"
}

// ParseLevel converts a level name, case-insensitively. It returns LevelInfo
// and false for unknown names.
func ParseLevel(s string) (LogLevel, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "WARNING" {
		return LevelWarn, true
	}
	for i, name := range levelNames {
		if s == name {
			return LogLevel(i), true
		}
	}
	return LevelInfo, false
}

var (
	currentLevel atomic.Uint32
	logger       = stdlog.New(os.Stderr, "", stdlog.Ldate|stdlog.Ltime|stdlog.Lmicroseconds)
)

func init() {
	SetLevel(LevelInfo)
}

// SetLevel sets the global level.
func SetLevel(level LogLevel) { currentLevel.Store(uint32(level)) }

// GetLevel returns the global level.
func GetLevel() LogLevel { return LogLevel(currentLevel.Load()) }

// SetOutput redirects all log output, including named loggers.
func SetOutput(w io.Writer) { logger.SetOutput(w) }

// Enabled reports whether messages at level are written.
func Enabled(level LogLevel) bool { return level >= GetLevel() }

// output writes one line. Levels are padded so messages line up.
func output(level LogLevel, prefix, msg string) {
	if level == LevelFatal {
		logger.Fatalf("[%s] %s%s", level, prefix, msg)
	}
	if !Enabled(level) {
		return
	}
	logger.Printf("%-8s%s%s", "["+level.String()+"]", prefix, msg)
}

func Debugf(format string, v ...any) { output(LevelDebug, "", fmt.Sprintf(format, v...)) }
func Infof(format string, v ...any)  { output(LevelInfo, "", fmt.Sprintf(format, v...)) }
func Warnf(format string, v ...any)  { output(LevelWarn, "", fmt.Sprintf(format, v...)) }
func Errorf(format string, v ...any) { output(LevelError, "", fmt.Sprintf(format, v...)) }

// Fatalf always logs, then exits with status 1.
func Fatalf(format string, v ...any) { output(LevelFatal, "", fmt.Sprintf(format, v...)) }

// Fatal is Fatalf with fmt.Sprint formatting.
func Fatal(v ...any) { output(LevelFatal, "", fmt.Sprint(v...)) }

// Logger tags every message with a component name. It shares the global
// level and output.
type Logger struct {
	prefix string
}

// Named returns a logger whose messages start with "name: ".
func Named(name string) *Logger {
	return &Logger{prefix: name + ": "}
}

func (l *Logger) Debugf(format string, v ...any) {
	if Enabled(LevelDebug) {
		output(LevelDebug, l.prefix, fmt.Sprintf(format, v...))
	}
}

func (l *Logger) Infof(format string, v ...any) { output(LevelInfo, l.prefix, fmt.Sprintf(format, v...)) }
func (l *Logger) Warnf(format string, v ...any) { output(LevelWarn, l.prefix, fmt.Sprintf(format, v...)) }

func (l *Logger) Errorf(format string, v ...any) {
	output(LevelError, l.prefix, fmt.Sprintf(format, v...))
}
