package server

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/harshbhati1/syncscribe/internal/ingest"
	"github.com/harshbhati1/syncscribe/internal/storage"
	"github.com/harshbhati1/syncscribe/internal/transcript"
)

// maxChunkBytes bounds one uploaded audio chunk. Chunks cover a few
// seconds of audio; anything near this limit is a malformed request.
const maxChunkBytes = 32 << 20

var sessionIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

type SessionStore interface {
	PutDocument(doc storage.SessionDocument) error
	GetDocument(id string) (storage.SessionDocument, error)
	ListSessions() ([]storage.SessionInfo, error)
	UpdateSummary(sessionID, summary, status string) error
}

// Ingestor runs one audio chunk through transcription. It always
// produces a segment; capability failures surface as fallback segments,
// not errors.
type Ingestor interface {
	Ingest(ctx context.Context, req ingest.Request) transcript.Segment
	TranscriberName() string
}

// Summarizer produces a summary for a finished transcript. An empty
// summary with nil error means the transcript was skipped (too short, or
// already summarized).
type Summarizer interface {
	Summarize(ctx context.Context, sessionID, transcript string) (string, error)
}

// ChatClient answers a question against a session transcript.
type ChatClient interface {
	Answer(ctx context.Context, transcript, question string) (string, error)
}

func registerAPIRoutes(mux *http.ServeMux, deps Deps) {
	mux.HandleFunc("POST /api/transcribe", func(w http.ResponseWriter, r *http.Request) {
		req, ok := parseTranscribeRequest(w, r)
		if !ok {
			return
		}

		segment := deps.Ingestor.Ingest(r.Context(), req)
		if deps.Hub != nil {
			deps.Hub.BroadcastSegmentReceived(segment)
		}

		// Capability failures ride inside the segment; the request
		// itself succeeded.
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"segment": segment,
		})
	})

	mux.HandleFunc("GET /api/sessions", func(w http.ResponseWriter, r *http.Request) {
		sessions, err := deps.Store.ListSessions()
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("list sessions: %v", err))
			return
		}
		writeJSON(w, http.StatusOK, sessions)
	})

	mux.HandleFunc("GET /api/sessions/{id}", func(w http.ResponseWriter, r *http.Request) {
		sessionID := r.PathValue("id")
		if !validSessionID(sessionID) {
			writeJSONError(w, http.StatusForbidden, "invalid session id")
			return
		}

		doc, err := deps.Store.GetDocument(sessionID)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, sql.ErrNoRows) {
				status = http.StatusNotFound
			}
			writeJSONError(w, status, fmt.Sprintf("get session: %v", err))
			return
		}

		writeJSON(w, http.StatusOK, doc)
	})

	mux.HandleFunc("PUT /api/sessions/{id}", func(w http.ResponseWriter, r *http.Request) {
		sessionID := r.PathValue("id")
		if !validSessionID(sessionID) {
			writeJSONError(w, http.StatusForbidden, "invalid session id")
			return
		}

		var doc storage.SessionDocument
		if err := json.NewDecoder(io.LimitReader(r.Body, maxChunkBytes)).Decode(&doc); err != nil {
			writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("parse session document: %v", err))
			return
		}
		if doc.ID == "" {
			doc.ID = sessionID
		}
		if doc.ID != sessionID {
			writeJSONError(w, http.StatusBadRequest, "session id mismatch")
			return
		}

		if err := deps.Store.PutDocument(doc); err != nil {
			writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("save session: %v", err))
			return
		}
		if deps.Hub != nil {
			deps.Hub.BroadcastSessionSaved(doc.ID, doc.FullyPersisted)
		}

		if deps.Summarizer != nil {
			go generateSummary(deps, doc.ID)
		}

		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	})

	mux.HandleFunc("POST /api/sessions/{id}/chat", func(w http.ResponseWriter, r *http.Request) {
		sessionID := r.PathValue("id")
		if !validSessionID(sessionID) {
			writeJSONError(w, http.StatusForbidden, "invalid session id")
			return
		}
		if deps.Chat == nil {
			writeJSONError(w, http.StatusServiceUnavailable, "chat is not configured")
			return
		}

		var body struct {
			Question string `json:"question"`
		}
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&body); err != nil {
			writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("parse chat request: %v", err))
			return
		}
		if strings.TrimSpace(body.Question) == "" {
			writeJSONError(w, http.StatusBadRequest, "question is required")
			return
		}

		doc, err := deps.Store.GetDocument(sessionID)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, sql.ErrNoRows) {
				status = http.StatusNotFound
			}
			writeJSONError(w, status, fmt.Sprintf("get session: %v", err))
			return
		}

		answer, err := deps.Chat.Answer(r.Context(), doc.Transcript, body.Question)
		if err != nil {
			writeJSONError(w, http.StatusBadGateway, fmt.Sprintf("chat: %v", err))
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{"answer": answer})
	})

	mux.HandleFunc("GET /api/status", func(w http.ResponseWriter, r *http.Request) {
		warnings := deps.Warnings
		if warnings == nil {
			warnings = []string{}
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"status":      "ok",
			"mode":        deps.Mode,
			"transcriber": deps.Ingestor.TranscriberName(),
			"warnings":    warnings,
		})
	})
}

// parseTranscribeRequest validates the multipart chunk upload. Only a
// structurally broken request fails here; everything downstream is
// reported through the segment.
func parseTranscribeRequest(w http.ResponseWriter, r *http.Request) (ingest.Request, bool) {
	if err := r.ParseMultipartForm(maxChunkBytes); err != nil {
		writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("parse multipart form: %v", err))
		return ingest.Request{}, false
	}

	file, header, err := r.FormFile("audio_data")
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "audio_data part is required")
		return ingest.Request{}, false
	}
	defer func() { _ = file.Close() }()

	audio, err := io.ReadAll(io.LimitReader(file, maxChunkBytes))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("read audio_data: %v", err))
		return ingest.Request{}, false
	}
	if len(audio) == 0 {
		writeJSONError(w, http.StatusBadRequest, "audio_data is empty")
		return ingest.Request{}, false
	}

	req := ingest.Request{
		Audio:    audio,
		MIMEType: header.Header.Get("Content-Type"),
		IsFinal:  r.FormValue("is_final") == "true",
	}

	// Metadata fields are advisory: unparsable values fall back to
	// server-side defaults rather than rejecting the audio.
	if ts, err := time.Parse(time.RFC3339Nano, r.FormValue("timestamp")); err == nil {
		req.Timestamp = ts
	}
	if secs, err := strconv.Atoi(r.FormValue("recording_time")); err == nil && secs >= 0 {
		req.RecordingTime = secs
	}

	return req, true
}

// generateSummary runs the summarizer for a freshly saved session and
// records the outcome. Failures are terminal for this attempt; a later
// save retries.
func generateSummary(deps Deps, sessionID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	doc, err := deps.Store.GetDocument(sessionID)
	if err != nil {
		log.Printf("summary: load session %s: %v", sessionID, err)
		return
	}
	if strings.TrimSpace(doc.Transcript) == "" {
		return
	}

	if err := deps.Store.UpdateSummary(sessionID, doc.Summary, storage.SummaryRunning); err != nil {
		log.Printf("summary: mark running for session %s: %v", sessionID, err)
		return
	}

	text, err := deps.Summarizer.Summarize(ctx, sessionID, doc.Transcript)
	if err != nil {
		log.Printf("summary: session %s failed: %v", sessionID, err)
		_ = deps.Store.UpdateSummary(sessionID, "", storage.SummaryFailed)
		if deps.Hub != nil {
			deps.Hub.BroadcastSummaryReady(sessionID, "", storage.SummaryFailed)
		}
		return
	}
	if text == "" {
		// Skipped: too short or already summarized for this transcript.
		_ = deps.Store.UpdateSummary(sessionID, doc.Summary, doc.SummaryStatus)
		return
	}

	if err := deps.Store.UpdateSummary(sessionID, text, storage.SummaryCompleted); err != nil {
		log.Printf("summary: store summary for session %s: %v", sessionID, err)
		return
	}
	if deps.Hub != nil {
		deps.Hub.BroadcastSummaryReady(sessionID, text, storage.SummaryCompleted)
	}
}

// requireAuth wraps API handlers with bearer-token checking. An empty
// configured token disables the check.
func requireAuth(token string, next http.Handler) http.Handler {
	if token == "" {
		return next
	}

	want := sha256.Sum256([]byte(token))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		got, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			writeJSONError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		gotSum := sha256.Sum256([]byte(got))
		if subtle.ConstantTimeCompare(want[:], gotSum[:]) != 1 {
			writeJSONError(w, http.StatusUnauthorized, "invalid bearer token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func validSessionID(id string) bool {
	return sessionIDPattern.MatchString(id)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
