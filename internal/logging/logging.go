// Package logging configures the process-wide zerolog logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New builds a logger writing human-readable output to stdout and, when
// logFile is non-empty, JSON lines to that file as well. The returned
// close func releases the log file.
func New(level, logFile string) (zerolog.Logger, func() error, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	console := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}

	var w io.Writer = console
	closeFn := func() error { return nil }
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("opening log file: %w", err)
		}
		w = zerolog.MultiLevelWriter(console, f)
		closeFn = f.Close
	}

	logger := zerolog.New(w).Level(lvl).With().Timestamp().Logger()
	return logger, closeFn, nil
}
