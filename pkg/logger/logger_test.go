package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func TestContextFieldsFlowThrough(t *testing.T) {
	var buf bytes.Buffer
	logg := New(Options{ServiceName: "settlement", Output: &buf})

	ctx := logg.WithIntentID(context.Background(), "intent-123")
	ctx = logg.WithStatus(ctx, "shielding")
	logg.Info(ctx, "step complete")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log output is not json: %v", err)
	}
	if entry["intent_id"] != "intent-123" {
		t.Fatalf("expected intent_id field, got %v", entry)
	}
	if entry["status"] != "shielding" {
		t.Fatalf("expected status field, got %v", entry)
	}
	if entry["service"] != "settlement" {
		t.Fatalf("expected service field, got %v", entry)
	}
}

func TestParseLevel(t *testing.T) {
	if ParseLevel("") != zerolog.InfoLevel {
		t.Fatal("empty level should default to info")
	}
	if ParseLevel(" DEBUG ") != zerolog.DebugLevel {
		t.Fatal("level parsing should be case and space insensitive")
	}
	if ParseLevel("bogus") != zerolog.InfoLevel {
		t.Fatal("unknown level should fall back to info")
	}
}

func TestErrorIncludesStack(t *testing.T) {
	var buf bytes.Buffer
	logg := New(Options{ServiceName: "settlement", Output: &buf})

	logg.Error(context.Background(), "boom", nil)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log output is not json: %v", err)
	}
	if _, ok := entry["stack"]; !ok {
		t.Fatal("error logs should carry a stack field")
	}
}
