package storage

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// badgerLogger sends Badger's internal log lines through zerolog so they
// share the application's format and level. It implements badger.Logger.
type badgerLogger struct {
	l zerolog.Logger
}

func newBadgerLogger() badgerLogger {
	return badgerLogger{
		l: log.With().Str("component", "badger").Logger(),
	}
}

// Badger terminates most of its messages with a newline
func msg(f string, v ...interface{}) string {
	return strings.TrimSpace(fmt.Sprintf(f, v...))
}

func (b badgerLogger) Errorf(f string, v ...interface{}) {
	b.l.Error().Msg(msg(f, v...))
}

func (b badgerLogger) Warningf(f string, v ...interface{}) {
	b.l.Warn().Msg(msg(f, v...))
}

func (b badgerLogger) Infof(f string, v ...interface{}) {
	b.l.Info().Msg(msg(f, v...))
}

// Badger is chatty at debug level, so its debug output goes to trace
func (b badgerLogger) Debugf(f string, v ...interface{}) {
	b.l.Trace().Msg(msg(f, v...))
}
