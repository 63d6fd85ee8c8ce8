package logger

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLoggerInit(t *testing.T) {
	err := Init()
	if err != nil {
		t.Fatalf("failed to initialize console logger: %v", err)
	}
	if Get() == nil {
		t.Fatal("logger is nil after initialization")
	}

	err = InitWithConfig(Config{Level: "debug", Format: "json"})
	if err != nil {
		t.Fatalf("failed to initialize json logger: %v", err)
	}
	if Get() == nil {
		t.Fatal("logger is nil after initialization")
	}
	_ = Sync()
}

func TestLoggerRejectsUnknownLevel(t *testing.T) {
	if err := InitWithConfig(Config{Level: "chatty"}); err == nil {
		t.Fatal("expected error for unknown level")
	}
	if err := SetLevelString("WARNING"); err != nil {
		t.Fatalf("warning should parse: %v", err)
	}
	if level.Level() != zapcore.WarnLevel {
		t.Fatalf("level = %v, want warn", level.Level())
	}
	SetLevel(zapcore.InfoLevel)
}

func TestLoggerNamed(t *testing.T) {
	if err := Init(); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}
	namedLogger := Named("test")
	if namedLogger == nil {
		t.Fatal("named logger is nil")
	}
	namedLogger.Info(context.Background(), "test message")
}

func TestContextFieldsAreCarried(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := &zapLogger{zap: zap.New(core)}

	ctx := WithFields(context.Background(), String("submission_id", "s-1"))
	ctx = WithFields(ctx, String("stage", "cloning"))
	l.Named("pipeline").Warn(ctx, "retrying", Int("attempt", 2), Error(errors.New("boom")))

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["submission_id"] != "s-1" || fields["stage"] != "cloning" {
		t.Fatalf("carried fields missing: %v", fields)
	}
	if fields["error"] != "boom" {
		t.Fatalf("error field = %v", fields["error"])
	}
	if entries[0].LoggerName != "pipeline" {
		t.Fatalf("logger name = %q", entries[0].LoggerName)
	}
}

func TestNopDiscards(t *testing.T) {
	l := NewNop()
	l.Error(context.Background(), "ignored", Any("k", 1))
}
