// Package logging wraps zap for the host-side tools. The daemon and CLI
// log through it; device builds stay on println and never import it.
//
// When no level is set, logging is silent: the daemon's serial-style
// output stays readable and tests stay quiet. Set PROVISIOND_LOG_LEVEL
// (or pass a level flag through Initialize) to turn it on.
package logging

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var logger *zap.Logger

// LogLevelEnvVar controls verbosity when Initialize gets an empty level.
// Valid values: "debug", "info", "warn", "error".
const LogLevelEnvVar = "PROVISIOND_LOG_LEVEL"

// Initialize creates the process logger at the given level. An empty
// level falls back to LogLevelEnvVar; if that is also empty, logging is
// disabled (Nop logger).
func Initialize(level string) error {
	if level == "" {
		level = os.Getenv(LogLevelEnvVar)
	}
	if level == "" {
		logger = zap.NewNop()
		return nil
	}

	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	config := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Development:      false,
		Encoding:         "console",
		EncoderConfig:    zap.NewDevelopmentEncoderConfig(),
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}
	config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	var err error
	logger, err = config.Build()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

// InitializeFromEnv initializes from LogLevelEnvVar alone. CLI commands
// use this so they are silent by default.
func InitializeFromEnv() error {
	return Initialize("")
}

// GetLogger returns the process logger, a Nop logger before Initialize.
func GetLogger() *zap.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return logger
}

func Info(msg string, fields ...zap.Field) {
	GetLogger().Info(msg, fields...)
}

func Debug(msg string, fields ...zap.Field) {
	GetLogger().Debug(msg, fields...)
}

func Warn(msg string, fields ...zap.Field) {
	GetLogger().Warn(msg, fields...)
}

func Error(msg string, fields ...zap.Field) {
	GetLogger().Error(msg, fields...)
}

func Fatal(msg string, fields ...zap.Field) {
	GetLogger().Fatal(msg, fields...)
}

// LogTransition records a provisioning state change with its reason.
func LogTransition(from, to, reason string) {
	Info("state transition",
		zap.String("from", from),
		zap.String("to", to),
		zap.String("reason", reason),
	)
}

// LogUpdateEvent records one firmware update lifecycle event.
func LogUpdateEvent(kind string, bytes int64, err string) {
	fields := []zap.Field{
		zap.String("kind", kind),
		zap.Int64("bytes", bytes),
	}
	if err != "" {
		fields = append(fields, zap.String("err", err))
	}
	Info("update event", fields...)
}

// Sync flushes any buffered log entries.
func Sync() {
	if logger != nil {
		_ = logger.Sync()
	}
}
