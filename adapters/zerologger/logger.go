// Package zerologger adapts zerolog to the identity Logger interface.
package zerologger

import (
	"fmt"

	identity "github.com/goliatone/go-identity"
	"github.com/rs/zerolog"
)

// Logger forwards key value pairs as zerolog fields.
type Logger struct {
	log zerolog.Logger
}

var _ identity.Logger = Logger{}

func New(log zerolog.Logger) Logger {
	return Logger{log: log.With().Str("component", "identity").Logger()}
}

func (l Logger) Debug(msg string, args ...any) {
	l.emit(l.log.Debug(), msg, args)
}

func (l Logger) Info(msg string, args ...any) {
	l.emit(l.log.Info(), msg, args)
}

func (l Logger) Warn(msg string, args ...any) {
	l.emit(l.log.Warn(), msg, args)
}

func (l Logger) Error(msg string, args ...any) {
	l.emit(l.log.Error(), msg, args)
}

func (l Logger) emit(event *zerolog.Event, msg string, args []any) {
	for i := 0; i < len(args); i += 2 {
		key := fmt.Sprint(args[i])
		if i+1 >= len(args) {
			event = event.Str("!BADKEY", key)
			break
		}
		if err, ok := args[i+1].(error); ok {
			event = event.AnErr(key, err)
			continue
		}
		event = event.Interface(key, args[i+1])
	}
	event.Msg(msg)
}
