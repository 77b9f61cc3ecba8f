// Package log is the process-wide structured logger.
package log

import (
	"io"
	"os"
	"sync"

	"github.com/paularlott/logger"
	logslog "github.com/paularlott/logger/slog"
)

var (
	mu      sync.RWMutex
	current logger.Logger = newLogger("info", "console", os.Stderr)
)

func newLogger(level, format string, w io.Writer) logger.Logger {
	return logslog.New(logslog.Config{
		Level:  level,
		Format: format,
		Writer: w,
	})
}

// Configure replaces the global logger. Level is one of trace, debug, info,
// warn or error; format is console or json.
func Configure(level, format string) {
	ConfigureWriter(level, format, os.Stderr)
}

// ConfigureWriter is Configure with an explicit destination.
func ConfigureWriter(level, format string, w io.Writer) {
	l := newLogger(level, format, w)
	mu.Lock()
	current = l
	mu.Unlock()
}

// Logger returns the current logger.
func Logger() logger.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

func Trace(msg string, keysAndValues ...any) { Logger().Trace(msg, keysAndValues...) }
func Debug(msg string, keysAndValues ...any) { Logger().Debug(msg, keysAndValues...) }
func Info(msg string, keysAndValues ...any)  { Logger().Info(msg, keysAndValues...) }
func Warn(msg string, keysAndValues ...any)  { Logger().Warn(msg, keysAndValues...) }
func Error(msg string, keysAndValues ...any) { Logger().Error(msg, keysAndValues...) }
