package server

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/harshbhati1/syncscribe/internal/transcript"
)

func TestWSBroadcastEventShape(t *testing.T) {
	hub := NewHub()
	ch := hub.Subscribe()
	defer hub.Unsubscribe(ch)

	hub.BroadcastSegmentReceived(transcript.Segment{
		ID:            "seg-1",
		Text:          "test line",
		Confidence:    0.9,
		RecordingTime: 3,
		Timestamp:     time.Now().UTC(),
	})

	select {
	case msg := <-ch:
		var payload map[string]any
		if err := json.Unmarshal(msg, &payload); err != nil {
			t.Fatalf("unmarshal failed: %v", err)
		}
		if payload["type"] != "segment_received" {
			t.Fatalf("expected event type segment_received, got %#v", payload["type"])
		}
		if payload["version"] == nil {
			t.Fatalf("expected version field in payload: %s", string(msg))
		}
		if payload["timestamp"] == nil {
			t.Fatalf("expected timestamp field in payload: %s", string(msg))
		}
		seg, ok := payload["segment"].(map[string]any)
		if !ok {
			t.Fatalf("expected segment object in payload: %s", string(msg))
		}
		if seg["text"] != "test line" {
			t.Fatalf("expected segment text, got %#v", seg["text"])
		}
	case <-time.After(1 * time.Second):
		t.Fatal("timeout waiting for websocket broadcast")
	}
}

func TestHubSlowSubscriberDoesNotBlock(t *testing.T) {
	hub := NewHub()
	ch := hub.Subscribe()
	defer hub.Unsubscribe(ch)

	// Overflow the subscriber buffer; Broadcast must not block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 200; i++ {
			hub.BroadcastSessionSaved("s1", true)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("broadcast blocked on a slow subscriber")
	}
}
