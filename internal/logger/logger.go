package logger

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitLogger builds the process-wide console logger. LOG_LEVEL narrows the
// output; anything unparseable falls back to info.
func InitLogger() zerolog.Logger {
	level := zerolog.InfoLevel
	if parsed, err := zerolog.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil && parsed != zerolog.NoLevel {
		level = parsed
	}
	return log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level)
}
