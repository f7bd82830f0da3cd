package observability

import (
	"context"
	"errors"
	"fmt"
	"syscall"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		env    string
		expect zapcore.Level
	}{
		{"", zap.InfoLevel},
		{"DEBUG", zap.DebugLevel},
		{"WARN", zap.WarnLevel},
		{"ERROR", zap.ErrorLevel},
		{"debug", zap.DebugLevel},
		{"  warn  ", zap.WarnLevel},
		{"invalid", zap.InfoLevel},
	}
	for _, tt := range tests {
		level := parseLogLevel(tt.env)
		if got := level.Level(); got != tt.expect {
			t.Errorf("parseLogLevel(%q) = %v, want %v", tt.env, got, tt.expect)
		}
	}
}

func TestNewLoggerConfig_Format(t *testing.T) {
	if got := newLoggerConfig("").Encoding; got != "json" {
		t.Errorf("default encoding = %q, want json", got)
	}
	if got := newLoggerConfig(" Console ").Encoding; got != "console" {
		t.Errorf("console encoding = %q, want console", got)
	}
}

func TestNewLogger(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	logger, err := NewLogger()
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	if !logger.Core().Enabled(zap.DebugLevel) {
		t.Error("LOG_LEVEL=debug should enable debug logging")
	}
	logger.Info("test message")
}

func TestFlushTelemetry(t *testing.T) {
	if err := FlushTelemetry(context.Background(), nil); err != nil {
		t.Errorf("nil logger: error = %v", err)
	}

	core, _ := observer.New(zapcore.InfoLevel)
	if err := FlushTelemetry(context.Background(), zap.New(core)); err != nil {
		t.Errorf("observer logger: error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := FlushTelemetry(ctx, zap.New(core)); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled ctx: error = %v, want context.Canceled", err)
	}
}

func TestIsUnsyncable(t *testing.T) {
	if !isUnsyncable(fmt.Errorf("sync /dev/stderr: %w", syscall.EINVAL)) {
		t.Error("EINVAL should be ignored")
	}
	if isUnsyncable(errors.New("disk full")) {
		t.Error("other errors should be reported")
	}
}
