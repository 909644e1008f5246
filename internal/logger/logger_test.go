package logger

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestNewWritesJSONToWriters(t *testing.T) {
	var buf bytes.Buffer
	log, err := New("production", "debug", &buf)
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	log.Info().Str("run_id", "r1").Msg("batch started")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected json line, got %q: %v", buf.String(), err)
	}
	if entry["message"] != "batch started" || entry["run_id"] != "r1" || entry["service"] != "billing-reminders" {
		t.Fatalf("unexpected entry %v", entry)
	}
}

func TestNewRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	log, err := New("production", "warn", &buf)
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	log.Info().Msg("hidden")
	if buf.Len() != 0 {
		t.Fatalf("info must be filtered at warn level, got %q", buf.String())
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	if _, err := New("production", "loud"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}
