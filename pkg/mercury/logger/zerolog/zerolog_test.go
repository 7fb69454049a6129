package zerolog

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/mihaimyh/gomercury/pkg/mercury"
)

func TestZerologLogger_NewLogger(t *testing.T) {
	output := bytes.Buffer{}
	zlog := zerolog.New(&output)
	logger := NewLogger(&zlog)

	if logger == nil {
		t.Fatal("NewLogger returned nil")
	}

	var _ mercury.Logger = logger
}

func TestZerologLogger_NilLoggerDiscards(t *testing.T) {
	logger := NewLogger(nil)
	logger.Error("nothing happens", mercury.Field{Key: "k", Value: "v"})
}

func TestZerologLogger_Levels(t *testing.T) {
	tests := []struct {
		name  string
		log   func(l *Logger)
		level string
	}{
		{"debug", func(l *Logger) { l.Debug("msg", mercury.Field{Key: "key", Value: "value"}) }, "debug"},
		{"info", func(l *Logger) { l.Info("msg", mercury.Field{Key: "key", Value: "value"}) }, "info"},
		{"warn", func(l *Logger) { l.Warn("msg", mercury.Field{Key: "key", Value: "value"}) }, "warn"},
		{"error", func(l *Logger) { l.Error("msg", mercury.Field{Key: "key", Value: "value"}) }, "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			output := bytes.Buffer{}
			zlog := zerolog.New(&output)
			tt.log(NewLogger(&zlog))

			var entry map[string]interface{}
			if err := json.Unmarshal(output.Bytes(), &entry); err != nil {
				t.Fatalf("log line is not JSON: %v (%q)", err, output.String())
			}
			if entry["level"] != tt.level {
				t.Errorf("level = %v, want %s", entry["level"], tt.level)
			}
			if entry["key"] != "value" {
				t.Errorf("key = %v, want value", entry["key"])
			}
		})
	}
}

func TestZerologLogger_LogLevelFiltering(t *testing.T) {
	output := bytes.Buffer{}
	zlog := zerolog.New(&output).Level(zerolog.WarnLevel)
	logger := NewLogger(&zlog)

	// Debug and Info should be filtered out
	logger.Debug("debug message")
	logger.Info("info message")

	if output.Len() != 0 {
		t.Error("Expected debug and info to be filtered out")
	}

	logger.Warn("warn message")
	logger.Error("error message")

	if output.Len() == 0 {
		t.Error("Expected warn and error to be logged")
	}
}

func TestZerologLogger_ErrorField(t *testing.T) {
	output := bytes.Buffer{}
	zlog := zerolog.New(&output)
	logger := NewLogger(&zlog)

	logger.Error("dispatch failed", mercury.Field{Key: "error", Value: errors.New("boom")})

	if !strings.Contains(output.String(), `"error":"boom"`) {
		t.Errorf("expected error text in output, got %s", output.String())
	}
}

func TestZerologLogger_SecretIsRedacted(t *testing.T) {
	output := bytes.Buffer{}
	zlog := zerolog.New(&output)
	logger := NewLogger(&zlog)

	logger.Info("binding", mercury.Field{Key: "secret", Value: mercury.Secret("super-secret")})

	if strings.Contains(output.String(), "super-secret") {
		t.Fatalf("secret leaked into log output: %s", output.String())
	}
	if !strings.Contains(output.String(), "[redacted]") {
		t.Errorf("expected redacted marker, got %s", output.String())
	}
}
