// Package dlogger builds zap loggers from a log level name
package dlogger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	// LogLevelDebug sets the log level to debug
	LogLevelDebug = "debug"

	// LogLevelInfo sets the log level to info
	LogLevelInfo = "info"

	// LogLevelWarn sets the log level to warn
	LogLevelWarn = "warn"

	// LogLevelError sets the log level to error
	LogLevelError = "error"

	// LogLevelNone sets logger to no logging
	LogLevelNone = "none"
)

// Option tweaks the zap configuration used to build a logger
type Option func(*zap.Config)

// Console switches the encoder to a human readable console output
func Console() Option {
	return func(c *zap.Config) {
		c.Encoding = "console"
		c.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		c.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}
}

// OutputPaths redirects the log output, e.g. to "stderr" or a file
func OutputPaths(paths ...string) Option {
	return func(c *zap.Config) {
		c.OutputPaths = paths
	}
}

// GetLogger returns a zap logger with the specified level
func GetLogger(logLevel string, opts ...Option) (*zap.Logger, error) {
	if logLevel == LogLevelNone {
		return zap.NewNop(), nil
	}
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(logLevel)); err != nil {
		return nil, err
	}
	zapConfig := zap.NewProductionConfig()
	zapConfig.Level = zap.NewAtomicLevelAt(lvl)
	for _, apply := range opts {
		apply(&zapConfig)
	}
	return zapConfig.Build()
}

// MustGetLogger returns a zap logger with the specified level or panics
func MustGetLogger(logLevel string, opts ...Option) *zap.Logger {
	l, err := GetLogger(logLevel, opts...)
	if err != nil {
		panic(err)
	}
	return l
}
