package logger

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

var log zerolog.Logger

func init() {
	Configure(os.Getenv("ENVIRONMENT"), os.Getenv("LOG_LEVEL"))
}

// Configure rebuilds the process logger. Development gets a console writer, anything else JSON.
func Configure(environment, level string) {
	var out io.Writer = os.Stdout
	if environment == "" || environment == "development" {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}

	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
		if environment == "development" {
			lvl = zerolog.DebugLevel
		}
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano
	log = zerolog.New(out).Level(lvl).With().Timestamp().Logger()
}

// SetOutput redirects the logger, mostly for tests.
func SetOutput(w io.Writer) {
	log = log.Output(w)
}

// Logger exposes the underlying zerolog logger for structured fields.
func Logger() *zerolog.Logger {
	return &log
}

func Info(format string, v ...interface{}) {
	log.Info().Str("caller", caller()).Msgf(format, v...)
}

func Error(format string, v ...interface{}) {
	log.Error().Str("caller", caller()).Msgf(format, v...)
}

func Debug(format string, v ...interface{}) {
	log.Debug().Str("caller", caller()).Msgf(format, v...)
}

func Warn(format string, v ...interface{}) {
	log.Warn().Str("caller", caller()).Msgf(format, v...)
}

// WithContext prefixes a message with the caller location and an optional context value.
func WithContext(ctx interface{}, format string, v ...interface{}) string {
	contextStr := caller()
	if ctx != nil {
		contextStr = fmt.Sprintf("%v - %v", contextStr, ctx)
	}
	return fmt.Sprintf("[%s] %s", contextStr, fmt.Sprintf(format, v...))
}

// LogSecondaryWriteError records a non-critical write failure that is swallowed by the caller.
func LogSecondaryWriteError(collection, documentID, action string, err error) {
	log.Warn().
		Str("collection", collection).
		Str("document_id", documentID).
		Str("action", action).
		Err(err).
		Msg("secondary write failed")
}

func caller() string {
	_, file, line, ok := runtime.Caller(2)
	if !ok {
		return "unknown"
	}
	if idx := strings.LastIndex(file, "/"); idx >= 0 {
		file = file[idx+1:]
	}
	return fmt.Sprintf("%s:%d", file, line)
}
