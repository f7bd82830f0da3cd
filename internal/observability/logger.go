package observability

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ServiceName is attached to every log line and reported by /health.
const ServiceName = "sensor-dashboard"

// NewLogger builds the process logger. LOG_LEVEL selects the level and
// LOG_FORMAT=console switches to the human-readable development encoder.
func NewLogger() (*zap.Logger, error) {
	config := newLoggerConfig(os.Getenv("LOG_FORMAT"))
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.Level = parseLogLevel(os.Getenv("LOG_LEVEL"))
	config.InitialFields = map[string]interface{}{"service": ServiceName}

	return config.Build()
}

func newLoggerConfig(format string) zap.Config {
	if strings.EqualFold(strings.TrimSpace(format), "console") {
		return zap.NewDevelopmentConfig()
	}
	return zap.NewProductionConfig()
}

func parseLogLevel(s string) zap.AtomicLevel {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return zap.NewAtomicLevelAt(zap.DebugLevel)
	case "WARN":
		return zap.NewAtomicLevelAt(zap.WarnLevel)
	case "ERROR":
		return zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		return zap.NewAtomicLevelAt(zap.InfoLevel)
	}
}
