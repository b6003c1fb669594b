package server

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/harshbhati1/syncscribe/internal/transcript"
)

func TestEventSerialization(t *testing.T) {
	events := []any{
		SegmentReceivedEvent{Event: newEvent("segment_received", time.Unix(1, 0)), Segment: transcript.Segment{ID: "s", Text: "hello"}},
		SessionSavedEvent{Event: newEvent("session_saved", time.Unix(1, 0)), SessionID: "abc", FullyPersisted: true},
		SummaryReadyEvent{Event: newEvent("summary_ready", time.Unix(1, 0)), SessionID: "abc", Summary: "ok"},
		ConnectionEvent{Event: newEvent("connection", time.Unix(1, 0)), Connected: true},
	}

	for _, event := range events {
		b, err := json.Marshal(event)
		if err != nil {
			t.Fatalf("marshal failed: %v", err)
		}

		var payload map[string]any
		if err := json.Unmarshal(b, &payload); err != nil {
			t.Fatalf("unmarshal failed: %v", err)
		}

		if payload["type"] == nil {
			t.Fatalf("missing type in payload: %s", string(b))
		}
		if payload["version"] == nil {
			t.Fatalf("missing version in payload: %s", string(b))
		}
		if payload["timestamp"] == nil {
			t.Fatalf("missing timestamp in payload: %s", string(b))
		}
	}
}
