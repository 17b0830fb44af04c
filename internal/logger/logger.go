package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup configures the global zerolog logger. Format "console" writes
// human-readable lines; anything else writes JSON.
func Setup(level string, format string) zerolog.Logger {
	return setup(os.Stdout, level, format)
}

func setup(out io.Writer, level string, format string) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	if format == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "2006-01-02 15:04:05"}
	}
	logger := zerolog.New(out).With().Timestamp().Logger()

	parsed, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		if level != "" {
			logger.Warn().Str("level", level).Msg("invalid log level, defaulting to info")
		}
		parsed = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(parsed)

	log.Logger = logger
	return logger
}
