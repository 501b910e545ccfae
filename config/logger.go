package config

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wippyai/mojo-wire/errors"
)

// NewLogger builds a zap logger for c. Development loggers write
// human-readable console output; production loggers write JSON.
func NewLogger(c LogConfig) (*zap.Logger, error) {
	level := c.Level
	if level == "" {
		level = DefaultLogLevel
	}
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, errors.Load("log level", err)
	}

	var zc zap.Config
	if c.Development {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(lvl)

	l, err := zc.Build()
	if err != nil {
		return nil, errors.Load("build logger", err)
	}
	return l, nil
}
