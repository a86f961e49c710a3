package cliconfig

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger returns a console logger writing to stderr at the given level.
// Unknown levels fall back to info.
func Logger(level string) zerolog.Logger {
	return newLogger(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}, level)
}

func newLogger(w io.Writer, level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}
