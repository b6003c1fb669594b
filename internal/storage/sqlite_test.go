package storage

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/harshbhati1/syncscribe/internal/transcript"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	store, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})

	return store
}

func TestSQLitePragmas(t *testing.T) {
	store := newTestSQLiteStore(t)

	var mode string
	if err := store.DB().QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatalf("PRAGMA journal_mode failed: %v", err)
	}
	if mode != "wal" {
		t.Fatalf("expected journal_mode wal, got %q", mode)
	}

	var timeout int
	if err := store.DB().QueryRow("PRAGMA busy_timeout").Scan(&timeout); err != nil {
		t.Fatalf("PRAGMA busy_timeout failed: %v", err)
	}
	if timeout < 5000 {
		t.Fatalf("expected busy_timeout >= 5000, got %d", timeout)
	}
}

func TestSQLiteDocumentRoundTrip(t *testing.T) {
	store := newTestSQLiteStore(t)

	createdAt := time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC)
	doc := SessionDocument{
		ID:             "sess-1",
		Title:          "Planning sync",
		Transcript:     "Ship the polished app. Then iterate.",
		FullyPersisted: true,
		CreatedAt:      createdAt,
		UpdatedAt:      createdAt.Add(90 * time.Second),
		Segments: []transcript.Segment{
			{
				ID:            "seg-a",
				Text:          "Ship the polished app.",
				Timestamp:     createdAt.Add(5 * time.Second),
				Confidence:    0.92,
				RecordingTime: 5,
			},
			{
				ID:              "seg-b",
				Text:            transcript.ErrorPlaceholder,
				Timestamp:       createdAt.Add(10 * time.Second),
				IsErrorFallback: true,
				ErrorDetail:     "upstream timeout",
				RecordingTime:   10,
			},
			{
				ID:            "seg-c",
				Text:          "Then iterate.",
				Timestamp:     createdAt.Add(15 * time.Second),
				Confidence:    0.88,
				IsFinal:       true,
				RecordingTime: 15,
			},
		},
	}
	if err := store.PutDocument(doc); err != nil {
		t.Fatalf("PutDocument failed: %v", err)
	}

	got, err := store.GetDocument("sess-1")
	if err != nil {
		t.Fatalf("GetDocument failed: %v", err)
	}
	if got.Title != doc.Title {
		t.Fatalf("expected title %q, got %q", doc.Title, got.Title)
	}
	if got.Transcript != doc.Transcript {
		t.Fatalf("expected transcript %q, got %q", doc.Transcript, got.Transcript)
	}
	if !got.FullyPersisted {
		t.Fatal("expected fully_persisted to survive the round trip")
	}
	if len(got.Segments) != 3 {
		t.Fatalf("expected 3 segments, got %d", len(got.Segments))
	}
	for i, seg := range got.Segments {
		if seg.ID != doc.Segments[i].ID {
			t.Fatalf("segment %d out of order: got %q, want %q", i, seg.ID, doc.Segments[i].ID)
		}
	}
	if !got.Segments[1].IsErrorFallback || got.Segments[1].ErrorDetail != "upstream timeout" {
		t.Fatalf("error fallback segment lost its marker: %+v", got.Segments[1])
	}
	if !got.Segments[2].IsFinal {
		t.Fatal("final segment lost its marker")
	}
}

func TestSQLitePutDocumentReplacesSegments(t *testing.T) {
	store := newTestSQLiteStore(t)

	doc := SessionDocument{
		ID:         "sess-2",
		Transcript: "one",
		Segments:   []transcript.Segment{{ID: "a", Text: "one", Timestamp: time.Now().UTC()}},
	}
	if err := store.PutDocument(doc); err != nil {
		t.Fatalf("first PutDocument failed: %v", err)
	}

	doc.Transcript = "one two"
	doc.Segments = append(doc.Segments, transcript.Segment{ID: "b", Text: "two", Timestamp: time.Now().UTC()})
	if err := store.PutDocument(doc); err != nil {
		t.Fatalf("second PutDocument failed: %v", err)
	}

	got, err := store.GetDocument("sess-2")
	if err != nil {
		t.Fatalf("GetDocument failed: %v", err)
	}
	if len(got.Segments) != 2 {
		t.Fatalf("expected segments replaced, not duplicated: got %d", len(got.Segments))
	}
}

func TestSQLiteListSessions(t *testing.T) {
	store := newTestSQLiteStore(t)

	base := time.Date(2026, 8, 31, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		doc := SessionDocument{
			ID:             fmt.Sprintf("sess-%d", i),
			Title:          fmt.Sprintf("Meeting %d", i),
			FullyPersisted: i != 1,
			CreatedAt:      base.Add(time.Duration(i) * time.Hour),
			UpdatedAt:      base.Add(time.Duration(i) * time.Hour),
		}
		if err := store.PutDocument(doc); err != nil {
			t.Fatalf("PutDocument %d failed: %v", i, err)
		}
	}

	sessions, err := store.ListSessions()
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(sessions) != 3 {
		t.Fatalf("expected 3 sessions, got %d", len(sessions))
	}
	// Newest first.
	if sessions[0].ID != "sess-2" || sessions[2].ID != "sess-0" {
		t.Fatalf("unexpected order: %q, %q, %q", sessions[0].ID, sessions[1].ID, sessions[2].ID)
	}
	if sessions[1].FullyPersisted {
		t.Fatal("expected sess-1 to be listed as not fully persisted")
	}
}

func TestSQLiteUpdateSummary(t *testing.T) {
	store := newTestSQLiteStore(t)

	if err := store.PutDocument(SessionDocument{ID: "sess-3"}); err != nil {
		t.Fatalf("PutDocument failed: %v", err)
	}
	if err := store.UpdateSummary("sess-3", "## Summary\n- done", SummaryCompleted); err != nil {
		t.Fatalf("UpdateSummary failed: %v", err)
	}

	got, err := store.GetDocument("sess-3")
	if err != nil {
		t.Fatalf("GetDocument failed: %v", err)
	}
	if got.SummaryStatus != SummaryCompleted {
		t.Fatalf("expected summary_status %q, got %q", SummaryCompleted, got.SummaryStatus)
	}
	if got.Summary == "" {
		t.Fatal("summary not stored")
	}
}

func TestSQLiteSummaryClaimIsIdempotent(t *testing.T) {
	store := newTestSQLiteStore(t)

	claimed, err := store.ClaimSummaryRequest("s1", "hash-1")
	if err != nil {
		t.Fatalf("first claim failed: %v", err)
	}
	if !claimed {
		t.Fatal("expected first claim to be accepted")
	}

	claimed, err = store.ClaimSummaryRequest("s1", "hash-1")
	if err != nil {
		t.Fatalf("second claim failed: %v", err)
	}
	if claimed {
		t.Fatal("expected second claim to be ignored")
	}
}

func TestSQLiteConcurrentAccess(t *testing.T) {
	store := newTestSQLiteStore(t)

	now := time.Now().UTC()
	if err := store.PutDocument(SessionDocument{ID: "sess-c", CreatedAt: now, UpdatedAt: now}); err != nil {
		t.Fatalf("PutDocument failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			_ = store.AppendSegment("sess-c", transcript.Segment{
				ID:            fmt.Sprintf("seg-%d", idx),
				Text:          fmt.Sprintf("segment-%d", idx),
				Timestamp:     now.Add(time.Duration(idx) * time.Second),
				RecordingTime: idx,
			})
			_, _ = store.GetDocument("sess-c")
		}(i)
	}
	wg.Wait()

	got, err := store.GetDocument("sess-c")
	if err != nil {
		t.Fatalf("GetDocument failed: %v", err)
	}
	if len(got.Segments) != 20 {
		t.Fatalf("expected 20 segments, got %d", len(got.Segments))
	}
}
