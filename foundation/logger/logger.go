// Package logger provides a convenience function to constructing a logger
// for use. This is required not just for applications but for testing.
package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// New constructs a Sugared Logger that writes to stdout and
// provides human readable timestamps.
func New(service string) (*zap.SugaredLogger, error) {
	config := newConfig(service)

	log, err := config.Build()
	if err != nil {
		return nil, err
	}

	return log.Sugar(), nil
}

// NewWithFile constructs a Sugared Logger that writes to stdout and also to
// a size rotated file. Rotated files are kept for maxBackups generations.
func NewWithFile(service string, file string, maxSizeMB int, maxBackups int) (*zap.SugaredLogger, error) {
	config := newConfig(service)

	log, err := config.Build()
	if err != nil {
		return nil, err
	}

	// The stdout core already carries the service field from the initial
	// fields, the file core needs it added.
	rotate := zapcore.AddSync(&lumberjack.Logger{
		Filename:   file,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
	})
	fileCore := zapcore.NewCore(zapcore.NewJSONEncoder(config.EncoderConfig), rotate, config.Level).
		With([]zapcore.Field{zap.String("service", service)})

	core := zapcore.NewTee(log.Core(), fileCore)

	return zap.New(core, zap.AddCaller()).Sugar(), nil
}

func newConfig(service string) zap.Config {
	config := zap.NewProductionConfig()
	config.OutputPaths = []string{"stdout"}
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.DisableStacktrace = true
	config.InitialFields = map[string]any{
		"service": service,
	}

	return config
}
