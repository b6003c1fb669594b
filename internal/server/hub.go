package server

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/harshbhati1/syncscribe/internal/transcript"
)

type Hub struct {
	mu      sync.RWMutex
	clients map[chan []byte]struct{}
}

func NewHub() *Hub {
	return &Hub{clients: make(map[chan []byte]struct{})}
}

func (h *Hub) Subscribe() chan []byte {
	ch := make(chan []byte, 64)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *Hub) Unsubscribe(ch chan []byte) {
	h.mu.Lock()
	delete(h.clients, ch)
	h.mu.Unlock()
	close(ch)
}

func (h *Hub) Broadcast(msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.clients {
		select {
		case ch <- msg:
		default:
		}
	}
}

func (h *Hub) BroadcastSegmentReceived(seg transcript.Segment) {
	h.broadcastEvent(SegmentReceivedEvent{
		Event:   newEvent("segment_received", seg.Timestamp),
		Segment: seg,
	})
}

func (h *Hub) BroadcastSessionSaved(sessionID string, fullyPersisted bool) {
	h.broadcastEvent(SessionSavedEvent{
		Event:          newEvent("session_saved", time.Now().UTC()),
		SessionID:      sessionID,
		FullyPersisted: fullyPersisted,
	})
}

func (h *Hub) BroadcastSummaryReady(sessionID, summary, status string) {
	h.broadcastEvent(SummaryReadyEvent{
		Event:     newEvent("summary_ready", time.Now().UTC()),
		SessionID: sessionID,
		Summary:   summary,
		Status:    status,
	})
}

func (h *Hub) broadcastEvent(event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("event marshal error: %v", err)
		return
	}
	h.Broadcast(payload)
}
