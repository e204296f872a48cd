package internal

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// LogLevel represents the logging level
type LogLevel int

const (
	LogLevelError LogLevel = iota
	LogLevelWarn
	LogLevelInfo
	LogLevelDebug
)

var (
	logMu    sync.RWMutex
	logLevel = LogLevelInfo
	logger   = newConsoleLogger(os.Stderr)
)

func newConsoleLogger(w io.Writer) zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: time.RFC3339,
	}).With().Timestamp().Logger()
}

// ConfigureLogger replaces the backing logger. format is "console" or "json";
// anything else falls back to console output.
func ConfigureLogger(w io.Writer, level, format string) {
	var l zerolog.Logger
	switch strings.ToLower(format) {
	case "json":
		l = zerolog.New(w).With().Timestamp().Logger()
	default:
		l = newConsoleLogger(w)
	}

	logMu.Lock()
	logger = l
	logMu.Unlock()

	SetLogLevel(ParseLogLevel(level))
}

// ParseLogLevel maps a level name to a LogLevel, defaulting to info.
func ParseLogLevel(raw string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "error":
		return LogLevelError
	case "warn", "warning":
		return LogLevelWarn
	case "debug", "trace":
		return LogLevelDebug
	default:
		return LogLevelInfo
	}
}

// SetLogLevel sets the global log level
func SetLogLevel(level LogLevel) {
	logMu.Lock()
	logLevel = level
	logMu.Unlock()
}

// SetVerbose enables verbose (debug) logging
func SetVerbose(verbose bool) {
	if verbose {
		SetLogLevel(LogLevelDebug)
	} else {
		SetLogLevel(LogLevelInfo)
	}
}

// Logger returns the structured logger for callers that attach fields.
func Logger() zerolog.Logger {
	logMu.RLock()
	defer logMu.RUnlock()
	return logger.Level(logLevel.zerolog())
}

func (l LogLevel) zerolog() zerolog.Level {
	switch l {
	case LogLevelError:
		return zerolog.ErrorLevel
	case LogLevelWarn:
		return zerolog.WarnLevel
	case LogLevelDebug:
		return zerolog.DebugLevel
	default:
		return zerolog.InfoLevel
	}
}

func enabled(level LogLevel) bool {
	logMu.RLock()
	defer logMu.RUnlock()
	return logLevel >= level
}

// LogError logs an error message
func LogError(format string, args ...interface{}) {
	if enabled(LogLevelError) {
		l := Logger()
		l.Error().Msgf(format, args...)
	}
}

// LogWarn logs a warning message
func LogWarn(format string, args ...interface{}) {
	if enabled(LogLevelWarn) {
		l := Logger()
		l.Warn().Msgf(format, args...)
	}
}

// LogInfo logs an info message
func LogInfo(format string, args ...interface{}) {
	if enabled(LogLevelInfo) {
		l := Logger()
		l.Info().Msgf(format, args...)
	}
}

// LogDebug logs a debug message
func LogDebug(format string, args ...interface{}) {
	if enabled(LogLevelDebug) {
		l := Logger()
		l.Debug().Msgf(format, args...)
	}
}
