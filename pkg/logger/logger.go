package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type Logger struct {
	zl zerolog.Logger
}

// New builds a logger writing to out. Format is "json" or "console".
func New(out io.Writer, level, format string) *Logger {
	if out == nil {
		out = os.Stderr
	}
	if strings.EqualFold(format, "console") {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	zl := zerolog.New(out).Level(parseLevel(level)).With().Timestamp().Logger()
	return &Logger{zl: zl}
}

func (l *Logger) Info(format string, v ...interface{}) {
	l.zl.Info().Msg(fmt.Sprintf(format, v...))
}

func (l *Logger) Warn(format string, v ...interface{}) {
	l.zl.Warn().Msg(fmt.Sprintf(format, v...))
}

func (l *Logger) Error(format string, v ...interface{}) {
	l.zl.Error().Msg(fmt.Sprintf(format, v...))
}

func (l *Logger) Debug(format string, v ...interface{}) {
	if l.zl.GetLevel() > zerolog.DebugLevel {
		return
	}
	l.zl.Debug().Msg(fmt.Sprintf(format, v...))
}

func (l *Logger) Fatal(format string, v ...interface{}) {
	l.zl.Error().Msg(fmt.Sprintf(format, v...))
	os.Exit(1)
}

// Zerolog exposes the underlying logger for structured fields.
func (l *Logger) Zerolog() *zerolog.Logger {
	return &l.zl
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled", "off":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

var (
	mu sync.RWMutex
	// Global logger instance
	GlobalLogger = New(os.Stdout, "info", "json")
)

// Init replaces the global logger. Safe to call more than once.
func Init(level, format string) {
	mu.Lock()
	defer mu.Unlock()
	GlobalLogger = New(os.Stdout, level, format)
}

// SetOutput redirects the global logger, mostly for tests.
func SetOutput(out io.Writer, level string) {
	mu.Lock()
	defer mu.Unlock()
	GlobalLogger = New(out, level, "json")
}

func global() *Logger {
	mu.RLock()
	defer mu.RUnlock()
	return GlobalLogger
}

// Convenience functions
func Info(format string, v ...interface{}) {
	global().Info(format, v...)
}

func Warn(format string, v ...interface{}) {
	global().Warn(format, v...)
}

func Error(format string, v ...interface{}) {
	global().Error(format, v...)
}

func Debug(format string, v ...interface{}) {
	global().Debug(format, v...)
}

func Fatal(format string, v ...interface{}) {
	global().Fatal(format, v...)
}

// Zerolog returns the current global zerolog logger.
func Zerolog() zerolog.Logger {
	return *global().Zerolog()
}
