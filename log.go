package minter

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/pkgerrors"
)

var log = zerolog.New(nil).Output(zerolog.ConsoleWriter{
	Out:        os.Stderr,
	TimeFormat: time.TimeOnly,
}).With().Timestamp().Logger()

func Log() zerolog.Logger {
	return log
}

func init() {
	zerolog.TimeFieldFormat = time.TimeOnly
	zerolog.ErrorStackMarshaler = MarshalStack
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

// SetLogLevel parses one of trace|debug|info|warn|error|fatal and applies it
// globally.
func SetLogLevel(level string) (err error) {
	if level == "" {
		level = "info"
	}

	parsed, err := zerolog.ParseLevel(level)
	if err != nil {
		return errors.WithStack(err)
	}

	zerolog.SetGlobalLevel(parsed)
	return
}

func MarshalStack(err error) interface{} {
	return pkgerrors.MarshalStack(err)
}
