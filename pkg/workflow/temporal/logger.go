package temporal

import (
	"fmt"

	"go.temporal.io/sdk/log"

	"github.com/mihaimyh/gomercury/pkg/mercury"
)

// Logger adapts mercury.Logger to the Temporal SDK logger interface.
type Logger struct {
	logger mercury.Logger
	fields []mercury.Field
}

var _ log.Logger = (*Logger)(nil)

// NewLogger wraps l. A nil l discards SDK logs.
func NewLogger(l mercury.Logger) *Logger {
	return &Logger{logger: mercury.LoggerOrNoop(l)}
}

func (l *Logger) Debug(msg string, keyvals ...interface{}) {
	l.logger.Debug(msg, l.toFields(keyvals)...)
}

func (l *Logger) Info(msg string, keyvals ...interface{}) {
	l.logger.Info(msg, l.toFields(keyvals)...)
}

func (l *Logger) Warn(msg string, keyvals ...interface{}) {
	l.logger.Warn(msg, l.toFields(keyvals)...)
}

func (l *Logger) Error(msg string, keyvals ...interface{}) {
	l.logger.Error(msg, l.toFields(keyvals)...)
}

// With returns a logger that adds keyvals to every entry.
func (l *Logger) With(keyvals ...interface{}) log.Logger {
	return &Logger{logger: l.logger, fields: l.toFields(keyvals)}
}

func (l *Logger) toFields(keyvals []interface{}) []mercury.Field {
	fields := make([]mercury.Field, 0, len(l.fields)+len(keyvals)/2+1)
	fields = append(fields, l.fields...)
	for i := 0; i < len(keyvals); i += 2 {
		key := fmt.Sprint(keyvals[i])
		if i+1 >= len(keyvals) {
			fields = append(fields, mercury.Field{Key: "extra", Value: key})
			break
		}
		fields = append(fields, mercury.Field{Key: key, Value: keyvals[i+1]})
	}
	return fields
}
