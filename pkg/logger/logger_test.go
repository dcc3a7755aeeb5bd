package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/wonny/marketlens/backend/pkg/config"
)

func decodeEntry(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Failed to parse log output: %v", err)
	}
	return entry
}

func TestNewSetsLevel(t *testing.T) {
	tests := []struct {
		level string
		want  zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			l := NewWithWriter(&config.Config{Env: "test", LogLevel: tt.level, LogFormat: "json"}, &buf)
			if l == nil {
				t.Fatal("Expected logger to be created")
			}
			if zerolog.GlobalLevel() != tt.want {
				t.Errorf("Expected global level %v, got %v", tt.want, zerolog.GlobalLevel())
			}
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input string
		want  zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"DEBUG", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"invalid", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := parseLogLevel(tt.input); got != tt.want {
				t.Errorf("parseLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestJSONEntryCarriesEnv(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&config.Config{Env: "staging", LogLevel: "debug", LogFormat: "json"}, &buf)

	l.Infof("reconnect in %dms", 1500)

	entry := decodeEntry(t, &buf)
	if entry["env"] != "staging" {
		t.Errorf("Expected env staging, got %v", entry["env"])
	}
	if entry["message"] != "reconnect in 1500ms" {
		t.Errorf("Unexpected message %v", entry["message"])
	}
	if entry["level"] != "info" {
		t.Errorf("Expected level info, got %v", entry["level"])
	}
}

func TestConsoleFormat(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&config.Config{Env: "test", LogLevel: "info", LogFormat: "console"}, &buf)

	l.Info("stream open")

	if !strings.Contains(buf.String(), "stream open") {
		t.Errorf("Expected console output to contain message, got %q", buf.String())
	}
}

func TestWithComponentAndFields(t *testing.T) {
	var buf bytes.Buffer
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	l := &Logger{zlog: zerolog.New(&buf)}

	l.WithComponent("stream").
		WithFields(map[string]interface{}{
			"stream":  "signals",
			"attempt": 3,
		}).
		Warn("reconnect scheduled")

	entry := decodeEntry(t, &buf)
	if entry["component"] != "stream" {
		t.Errorf("Expected component stream, got %v", entry["component"])
	}
	if entry["stream"] != "signals" {
		t.Errorf("Expected stream signals, got %v", entry["stream"])
	}
	if entry["attempt"] != float64(3) {
		t.Errorf("Expected attempt 3, got %v", entry["attempt"])
	}
}

func TestWithError(t *testing.T) {
	var buf bytes.Buffer
	l := &Logger{zlog: zerolog.New(&buf)}

	l.WithError(errors.New("handshake timeout")).Error("dial failed")

	entry := decodeEntry(t, &buf)
	if entry["error"] != "handshake timeout" {
		t.Errorf("Expected error field, got %v", entry["error"])
	}
}

func TestNopDiscards(t *testing.T) {
	l := Nop()
	l.WithField("k", "v").Error("nothing")
}
