package pubsub

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/acctportal/billingcore/internal/logger"
)

// watermillLogger routes watermill's internal logging through the service logger
type watermillLogger struct {
	log *logger.Logger
}

// NewWatermillLogger adapts the service logger to watermill.LoggerAdapter
func NewWatermillLogger(log *logger.Logger) watermill.LoggerAdapter {
	return &watermillLogger{log: log}
}

func (l *watermillLogger) Error(msg string, err error, fields watermill.LogFields) {
	l.log.Errorw(msg, append(flatten(fields), "error", err)...)
}

func (l *watermillLogger) Info(msg string, fields watermill.LogFields) {
	l.log.Infow(msg, flatten(fields)...)
}

func (l *watermillLogger) Debug(msg string, fields watermill.LogFields) {
	l.log.Debugw(msg, flatten(fields)...)
}

// Trace is too chatty for production logs and is folded into debug
func (l *watermillLogger) Trace(msg string, fields watermill.LogFields) {
	l.log.Debugw(msg, flatten(fields)...)
}

func (l *watermillLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &watermillLogger{log: l.log.With(flatten(fields)...)}
}

func flatten(fields watermill.LogFields) []interface{} {
	kv := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		kv = append(kv, k, v)
	}
	return kv
}
