package logging

import (
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var logger *zap.Logger

// LogLevelEnvVar is the environment variable that controls logging verbosity.
// When unset or empty, logging is silent (no zap output).
// Valid values: "debug", "info", "warn", "error"
const LogLevelEnvVar = "BATTCTL_LOG_LEVEL"

// Initialize creates a new logger with the specified level.
// If level is empty, it checks BATTCTL_LOG_LEVEL environment variable.
// If neither is set, logging is disabled (silent mode).
func Initialize(level string) error {
	if level == "" {
		level = os.Getenv(LogLevelEnvVar)
	}

	if level == "" {
		logger = zap.NewNop()
		return nil
	}

	config := zap.Config{
		Level:            zap.NewAtomicLevelAt(ParseLevel(level)),
		Development:      false,
		Encoding:         "console",
		EncoderConfig:    zap.NewDevelopmentEncoderConfig(),
		OutputPaths:      []string{"stderr"},
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

// ParseLevel maps a level name to a zap level. Unknown names fall back to
// info, since asking for logging at all means the caller wants output.
func ParseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// GetLogger returns the global logger instance
func GetLogger() *zap.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return logger
}

// Named returns a child of the global logger scoped to a component.
func Named(component string) *zap.Logger {
	return GetLogger().Named(component)
}

// Info logs an info message
func Info(msg string, fields ...zap.Field) {
	GetLogger().Info(msg, fields...)
}

// Debug logs a debug message
func Debug(msg string, fields ...zap.Field) {
	GetLogger().Debug(msg, fields...)
}

// Warn logs a warning message
func Warn(msg string, fields ...zap.Field) {
	GetLogger().Warn(msg, fields...)
}

// Error logs an error message
func Error(msg string, fields ...zap.Field) {
	GetLogger().Error(msg, fields...)
}

// CommandFields builds the standard field set for a finished helper
// invocation. Arguments that look like secrets are masked.
func CommandFields(argv []string, status int, elapsed time.Duration) []zap.Field {
	return []zap.Field{
		zap.String("command", commandKeyword(argv)),
		zap.Strings("argv", MaskArgv(argv)),
		zap.Int("status", status),
		zap.Duration("elapsed", elapsed),
	}
}

// MaskArgv returns a copy of argv with the password argument of
// authenticated helper commands replaced.
func MaskArgv(argv []string) []string {
	masked := make([]string, len(argv))
	copy(masked, argv)
	for i, arg := range masked {
		// DELL_CCTK_AUTH_WRITE <cctk-path> <password> ...
		if strings.HasSuffix(arg, "_AUTH_WRITE") && i+2 < len(masked) {
			masked[i+2] = "********"
		}
	}
	return masked
}

func commandKeyword(argv []string) string {
	// pkexec <helper> KEYWORD ...
	if len(argv) >= 3 && argv[0] == "pkexec" {
		return argv[2]
	}
	if len(argv) > 0 {
		return argv[0]
	}
	return ""
}

// Sync flushes any buffered log entries
func Sync() {
	if logger != nil {
		_ = logger.Sync()
	}
}
