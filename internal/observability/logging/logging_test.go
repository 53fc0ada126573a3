package logging_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"journal-notify/internal/observability/logging"
)

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"warn", slog.LevelWarn},
		{"WARNING", slog.LevelWarn},
		{"error", slog.LevelError},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tc := range cases {
		if got := logging.ParseLevel(tc.in); got != tc.want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestNewLoggerStampsServiceIdentity(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewLogger(logging.Config{
		ServiceName: "notifyd",
		Environment: "test",
		Level:       "debug",
		Output:      &buf,
	})

	logging.Worker(logger, "retry").Info("sweep completed", "processed", 3)

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("log line is not JSON: %v (%q)", err, buf.String())
	}
	if line["service"] != "notifyd" || line["env"] != "test" || line["worker"] != "retry" {
		t.Fatalf("identity attrs missing: %v", line)
	}
	if line["msg"] != "sweep completed" {
		t.Fatalf("unexpected message: %v", line["msg"])
	}
}

func TestNewLoggerHonorsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewLogger(logging.Config{Level: "error", Output: &buf})

	logger.Info("dropped")
	if buf.Len() != 0 {
		t.Fatalf("info line must be filtered at error level: %q", buf.String())
	}
	logger.Error("kept")
	if buf.Len() == 0 {
		t.Fatal("error line must pass at error level")
	}
}
