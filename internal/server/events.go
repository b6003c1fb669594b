package server

import (
	"time"

	"github.com/harshbhati1/syncscribe/internal/transcript"
)

const EventVersion = 1

type Event struct {
	Type      string `json:"type"`
	Version   int    `json:"version"`
	Timestamp string `json:"timestamp"`
}

// SegmentReceivedEvent mirrors each ingested chunk to live watchers.
type SegmentReceivedEvent struct {
	Event
	Segment transcript.Segment `json:"segment"`
}

type SessionSavedEvent struct {
	Event
	SessionID      string `json:"session_id"`
	FullyPersisted bool   `json:"fully_persisted"`
}

type SummaryReadyEvent struct {
	Event
	SessionID string `json:"session_id"`
	Summary   string `json:"summary"`
	Status    string `json:"status"`
}

type ConnectionEvent struct {
	Event
	Connected bool `json:"connected"`
}

func newEvent(eventType string, now time.Time) Event {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	return Event{
		Type:      eventType,
		Version:   EventVersion,
		Timestamp: now.UTC().Format(time.RFC3339Nano),
	}
}
