// Package logging adapts zap to the domain Observer port.
package logging

import (
	"sort"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ersonp/kgraph/internal/domain/ports"
)

// New builds a zap logger. "production" yields JSON at info level;
// anything else yields a coloured console logger at debug level.
func New(env string) (*zap.Logger, error) {
	var config zap.Config

	if env == "production" {
		config = zap.NewProductionConfig()
		config.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	} else {
		config = zap.NewDevelopmentConfig()
		config.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return config.Build()
}

// Observer forwards domain events to a zap logger.
type Observer struct {
	log *zap.Logger
}

var _ ports.Observer = (*Observer)(nil)

// NewObserver wraps log. A nil logger discards events.
func NewObserver(log *zap.Logger) *Observer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Observer{log: log}
}

// Info logs at info level.
func (o *Observer) Info(msg string, fields ports.Fields) {
	o.log.Info(msg, toZap(fields)...)
}

// Error logs at error level with the cause attached.
func (o *Observer) Error(msg string, err error, fields ports.Fields) {
	o.log.Error(msg, append(toZap(fields), zap.Error(err))...)
}

// toZap converts fields in key order so output is stable.
func toZap(fields ports.Fields) []zap.Field {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]zap.Field, 0, len(keys)+1)
	for _, k := range keys {
		out = append(out, zap.Any(k, fields[k]))
	}
	return out
}
