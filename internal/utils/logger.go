package utils

import (
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	loggerMu   sync.RWMutex
	baseLogger = zap.NewNop()
)

// InitLogger builds the process logger.
// level: "debug", "info", "warn", "error" (default "info").
// format: "json" or "console" (default "json").
func InitLogger(level, format, serviceName string) (*zap.Logger, error) {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	var cfg zap.Config
	if format == "console" {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "timestamp"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		cfg.OutputPaths = []string{"stdout"}
		cfg.ErrorOutputPaths = []string{"stderr"}
	}
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)

	logger, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, err
	}
	if serviceName != "" {
		logger = logger.With(zap.String("service_name", serviceName))
	}
	if hostname, err := os.Hostname(); err == nil && hostname != "" {
		logger = logger.With(zap.String("hostname", hostname))
	}

	SetLogger(logger)
	return logger, nil
}

func SetLogger(logger *zap.Logger) {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	baseLogger = logger
}

// Logger returns the process logger without the helper caller skip.
func Logger() *zap.Logger {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return baseLogger.WithOptions(zap.AddCallerSkip(-1))
}

func current() *zap.Logger {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return baseLogger
}

func LogDebug(format string, v ...interface{}) {
	current().Debug(fmt.Sprintf(format, v...))
}

func LogInfo(format string, v ...interface{}) {
	current().Info(fmt.Sprintf(format, v...))
}

func LogError(format string, v ...interface{}) {
	current().Error(fmt.Sprintf(format, v...))
}

func LogWarning(format string, v ...interface{}) {
	current().Warn(fmt.Sprintf(format, v...))
}

func TimeTrack(start time.Time, name string) {
	current().Debug("timing", zap.String("operation", name), zap.Duration("elapsed", time.Since(start)))
}
