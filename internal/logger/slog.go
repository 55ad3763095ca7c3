package logger

import (
	"io"
	"log/slog"
	"os"
)

var slogger *slog.Logger

// Init initializes the slog-based logger.
// CLI results go to stdout, so logs always write to stderr. When jsonOutput
// is true, logs are formatted as JSON for machine consumption.
func Init(verbose, jsonOutput bool) {
	InitWithWriter(os.Stderr, verbose, jsonOutput)
}

// InitWithWriter initializes the logger against an explicit writer.
func InitWithWriter(w io.Writer, verbose, jsonOutput bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	var handler slog.Handler
	if jsonOutput {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level: level,
		})
	} else {
		handler = slog.NewTextHandler(w, &slog.HandlerOptions{
			Level: level,
		})
	}

	slogger = slog.New(handler)
	slog.SetDefault(slogger)
}

// Slog returns the slog.Logger instance for structured logging
func Slog() *slog.Logger {
	if slogger == nil {
		return slog.Default()
	}
	return slogger
}
