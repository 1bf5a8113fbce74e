// Package prettylog installs a charmbracelet/log handler as the slog default.
package prettylog

import (
	"io"
	"log/slog"

	"github.com/charmbracelet/log"
)

// SetupPrettyLogger routes slog through a charmbracelet/log handler writing
// to writerForLogger and returns the handler so callers can adjust its level.
func SetupPrettyLogger(writerForLogger io.Writer) *log.Logger {
	logHandler := log.NewWithOptions(
		writerForLogger,
		log.Options{
			// Default level. Callers can use SetLevel on the returned handler to change.
			Level:           log.WarnLevel,
			ReportTimestamp: true,
			Prefix:          "buildhook",
		},
	)
	logger := slog.New(logHandler)
	slog.SetDefault(logger)

	return logHandler
}

// LevelFor maps the CLI switches to a log level.
func LevelFor(debug, verbose bool) log.Level {
	switch {
	case debug:
		return log.DebugLevel
	case verbose:
		return log.InfoLevel
	default:
		return log.WarnLevel
	}
}
