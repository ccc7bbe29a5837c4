// Package obs wires structured logging for the core. Every package that
// performs I/O or makes a security-relevant decision logs through here
// rather than fmt.Println, matching the "ambient stack" decision in
// SPEC_FULL.md §5.1.
package obs

import (
	"os"
	"sync"

	"github.com/rs/zerolog"
)

var (
	once   sync.Once
	logger zerolog.Logger
)

// Log returns the process-wide structured logger. Level defaults to info;
// set RUTH_LOG_LEVEL (e.g. "debug") to change it.
func Log() *zerolog.Logger {
	once.Do(func() {
		level := zerolog.InfoLevel
		if lvl, err := zerolog.ParseLevel(os.Getenv("RUTH_LOG_LEVEL")); err == nil && lvl != zerolog.NoLevel {
			level = lvl
		}
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}).
			Level(level).
			With().Timestamp().Logger()
	})
	return &logger
}

// SetLogger overrides the process-wide logger, e.g. for JSON output in
// production or a test sink in unit tests.
func SetLogger(l zerolog.Logger) {
	logger = l
}
