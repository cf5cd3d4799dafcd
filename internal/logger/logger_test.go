package logger

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestNewJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "debug", "json")
	log.Info().Str("session_id", "abc").Msg("session started")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON line, got %q: %v", buf.String(), err)
	}
	if entry["message"] != "session started" || entry["session_id"] != "abc" || entry["service"] != "webexam" {
		t.Fatalf("unexpected entry: %v", entry)
	}
}

func TestNewUnknownLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "chatty", "json")
	log.Debug().Msg("hidden")
	if buf.Len() != 0 {
		t.Fatalf("debug should be filtered at info level, got %q", buf.String())
	}
	log.Info().Msg("shown")
	if buf.Len() == 0 {
		t.Fatal("info should be written")
	}
}
