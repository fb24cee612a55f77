// Package logger builds the zap loggers used by the binaries.
package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a JSON logger writing debug and info entries to stdout and
// warnings and errors to stderr.
//
// Arguments:
//   - debug: Enables debug entries and the development encoder config.
//
// Returns:
//   - *zap.Logger: The logger.
func New(debug bool) *zap.Logger {
	return zap.New(NewCore(debug, zapcore.Lock(os.Stdout), zapcore.Lock(os.Stderr)))
}

// NewCore builds the tee core behind New on arbitrary sinks.
func NewCore(debug bool, out, errOut zapcore.WriteSyncer) zapcore.Core {
	encoderConfig := zap.NewProductionEncoderConfig()
	if debug {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
	}
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	// debug (when enabled) and info
	low := zap.LevelEnablerFunc(func(level zapcore.Level) bool {
		if level == zapcore.DebugLevel {
			return debug
		}
		return level == zapcore.InfoLevel
	})

	// warn, error and fatal
	high := zap.LevelEnablerFunc(func(level zapcore.Level) bool {
		return level >= zapcore.WarnLevel
	})

	return zapcore.NewTee(
		zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), out, low),
		zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), errOut, high),
	)
}
