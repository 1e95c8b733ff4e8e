// Package logger configures the global zerolog logger.
package logger

import (
	"io"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitLogger sets up the global logger: human readable console output in
// development, JSON lines otherwise.
func InitLogger(development bool) {
	var out io.Writer = os.Stdout
	if development {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}
	Init(out)
}

// Init points the global logger at w.
func Init(w io.Writer) {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = zerolog.New(w).With().Timestamp().Logger()
}

// SetLogLevel applies level, falling back to info when it does not parse.
func SetLogLevel(level string) zerolog.Level {
	parsed, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		parsed = zerolog.InfoLevel
		log.Debug().Str("loglevel", level).Msg("log level not recognized, using info")
	}
	zerolog.SetGlobalLevel(parsed)
	return parsed
}

// ErrorWithStack logs err together with the stack of the caller.
func ErrorWithStack(err error) {
	log.Error().Msgf("%+v", errors.WithStack(err))
}
