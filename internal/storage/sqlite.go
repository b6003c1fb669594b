package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/harshbhati1/syncscribe/internal/transcript"
)

const (
	SummaryPending   = "pending"
	SummaryRunning   = "running"
	SummaryCompleted = "completed"
	SummaryFailed    = "failed"
)

// SessionDocument is the persisted form of one recording session: the
// joined transcript plus its ordered segments. Saves from the recorder
// always carry the complete document; FullyPersisted is false when the
// session ended with outstanding or failed chunk uploads.
type SessionDocument struct {
	ID             string               `json:"id"`
	Title          string               `json:"title"`
	Transcript     string               `json:"transcript"`
	Segments       []transcript.Segment `json:"segments"`
	FullyPersisted bool                 `json:"fully_persisted"`
	Summary        string               `json:"summary,omitempty"`
	SummaryStatus  string               `json:"summary_status,omitempty"`
	CreatedAt      time.Time            `json:"created_at"`
	UpdatedAt      time.Time            `json:"updated_at"`
}

// SessionInfo is the list-view projection of a session document.
type SessionInfo struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	SummaryStatus  string    `json:"summary_status"`
	FullyPersisted bool      `json:"fully_persisted"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type SQLiteStore struct {
	db   *sql.DB
	path string
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if strings.TrimSpace(dbPath) == "" {
		dbPath = filepath.Join("data", "syncscribe.db")
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db, path: dbPath}
	if err := store.init(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) init() error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("apply pragma %q: %w", p, err)
		}
	}

	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL DEFAULT '',
			transcript TEXT NOT NULL DEFAULT '',
			fully_persisted INTEGER NOT NULL DEFAULT 1,
			summary TEXT NOT NULL DEFAULT '',
			summary_status TEXT NOT NULL DEFAULT 'pending',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);
	`); err != nil {
		return fmt.Errorf("create sessions table: %w", err)
	}

	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS segments (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			position INTEGER NOT NULL,
			seg_id TEXT NOT NULL,
			text TEXT NOT NULL,
			confidence REAL NOT NULL DEFAULT 0,
			is_final INTEGER NOT NULL DEFAULT 0,
			is_error INTEGER NOT NULL DEFAULT 0,
			error_detail TEXT NOT NULL DEFAULT '',
			recording_time INTEGER NOT NULL DEFAULT 0,
			timestamp TEXT NOT NULL,
			FOREIGN KEY(session_id) REFERENCES sessions(id) ON DELETE CASCADE
		);
	`); err != nil {
		return fmt.Errorf("create segments table: %w", err)
	}

	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS summary_requests (
			session_id TEXT NOT NULL,
			prompt_hash TEXT NOT NULL,
			created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(session_id, prompt_hash)
		);
	`); err != nil {
		return fmt.Errorf("create summary_requests table: %w", err)
	}

	if _, err := s.db.Exec("CREATE INDEX IF NOT EXISTS idx_sessions_updated_at ON sessions(updated_at)"); err != nil {
		return fmt.Errorf("create sessions index: %w", err)
	}
	if _, err := s.db.Exec("CREATE INDEX IF NOT EXISTS idx_segments_session_id ON segments(session_id, position)"); err != nil {
		return fmt.Errorf("create segments index: %w", err)
	}

	return nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// Path is the resolved on-disk location of the database file.
func (s *SQLiteStore) Path() string {
	return s.path
}

// PutDocument upserts the whole session document, replacing its segment
// rows in the same transaction.
func (s *SQLiteStore) PutDocument(doc SessionDocument) error {
	if strings.TrimSpace(doc.ID) == "" {
		return errors.New("session id is required")
	}

	now := time.Now().UTC()
	createdAt := doc.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	updatedAt := doc.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = now
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin put document: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.Exec(
		`INSERT INTO sessions(id, title, transcript, fully_persisted, created_at, updated_at)
		 VALUES(?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			transcript = excluded.transcript,
			fully_persisted = excluded.fully_persisted,
			updated_at = excluded.updated_at`,
		doc.ID,
		doc.Title,
		doc.Transcript,
		boolToInt(doc.FullyPersisted),
		createdAt.Format(time.RFC3339Nano),
		updatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("upsert session %s: %w", doc.ID, err)
	}

	if _, err := tx.Exec(`DELETE FROM segments WHERE session_id = ?`, doc.ID); err != nil {
		return fmt.Errorf("clear segments for session %s: %w", doc.ID, err)
	}

	for i, seg := range doc.Segments {
		if err := insertSegment(tx, doc.ID, i, seg); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit put document %s: %w", doc.ID, err)
	}
	return nil
}

// AppendSegment adds one segment at the end of an existing session's
// ordered list.
func (s *SQLiteStore) AppendSegment(sessionID string, seg transcript.Segment) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin append segment: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var next int
	row := tx.QueryRow(`SELECT COALESCE(MAX(position) + 1, 0) FROM segments WHERE session_id = ?`, sessionID)
	if err := row.Scan(&next); err != nil {
		return fmt.Errorf("next segment position for session %s: %w", sessionID, err)
	}

	if err := insertSegment(tx, sessionID, next, seg); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit append segment for session %s: %w", sessionID, err)
	}
	return nil
}

func insertSegment(tx *sql.Tx, sessionID string, position int, seg transcript.Segment) error {
	_, err := tx.Exec(
		`INSERT INTO segments(session_id, position, seg_id, text, confidence, is_final, is_error, error_detail, recording_time, timestamp)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sessionID,
		position,
		seg.ID,
		seg.Text,
		seg.Confidence,
		boolToInt(seg.IsFinal),
		boolToInt(seg.IsErrorFallback),
		seg.ErrorDetail,
		seg.RecordingTime,
		seg.Timestamp.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert segment for session %s: %w", sessionID, err)
	}
	return nil
}

func (s *SQLiteStore) GetDocument(id string) (SessionDocument, error) {
	row := s.db.QueryRow(
		`SELECT id, title, transcript, fully_persisted, summary, summary_status, created_at, updated_at
		 FROM sessions WHERE id = ?`,
		id,
	)

	var doc SessionDocument
	var persisted int
	var createdAt, updatedAt string
	if err := row.Scan(&doc.ID, &doc.Title, &doc.Transcript, &persisted, &doc.Summary, &doc.SummaryStatus, &createdAt, &updatedAt); err != nil {
		return SessionDocument{}, fmt.Errorf("query session %s: %w", id, err)
	}
	doc.FullyPersisted = persisted != 0

	var err error
	if doc.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return SessionDocument{}, fmt.Errorf("parse session %s created_at: %w", id, err)
	}
	if doc.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return SessionDocument{}, fmt.Errorf("parse session %s updated_at: %w", id, err)
	}

	if doc.Segments, err = s.getSegments(id); err != nil {
		return SessionDocument{}, err
	}
	return doc, nil
}

func (s *SQLiteStore) getSegments(sessionID string) ([]transcript.Segment, error) {
	rows, err := s.db.Query(
		`SELECT seg_id, text, confidence, is_final, is_error, error_detail, recording_time, timestamp
		 FROM segments
		 WHERE session_id = ?
		 ORDER BY position ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("query segments for session %s: %w", sessionID, err)
	}
	defer func() { _ = rows.Close() }()

	segments := make([]transcript.Segment, 0, 32)
	for rows.Next() {
		var seg transcript.Segment
		var isFinal, isError int
		var ts string
		if err := rows.Scan(&seg.ID, &seg.Text, &seg.Confidence, &isFinal, &isError, &seg.ErrorDetail, &seg.RecordingTime, &ts); err != nil {
			return nil, fmt.Errorf("scan segment for session %s: %w", sessionID, err)
		}
		seg.IsFinal = isFinal != 0
		seg.IsErrorFallback = isError != 0

		parsedTS, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("parse segment timestamp for session %s: %w", sessionID, err)
		}
		seg.Timestamp = parsedTS

		segments = append(segments, seg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate segment rows for session %s: %w", sessionID, err)
	}
	return segments, nil
}

func (s *SQLiteStore) ListSessions() ([]SessionInfo, error) {
	rows, err := s.db.Query(
		`SELECT id, title, summary_status, fully_persisted, updated_at
		 FROM sessions
		 ORDER BY updated_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	sessions := make([]SessionInfo, 0, 16)
	for rows.Next() {
		var info SessionInfo
		var persisted int
		var updatedAt string
		if err := rows.Scan(&info.ID, &info.Title, &info.SummaryStatus, &persisted, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		info.FullyPersisted = persisted != 0

		if info.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
			return nil, fmt.Errorf("parse updated_at: %w", err)
		}
		sessions = append(sessions, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions rows: %w", err)
	}

	return sessions, nil
}

func (s *SQLiteStore) UpdateSummary(sessionID, summary, status string) error {
	res, err := s.db.Exec(
		`UPDATE sessions SET summary = ?, summary_status = ? WHERE id = ?`,
		summary,
		status,
		sessionID,
	)
	if err != nil {
		return fmt.Errorf("update summary for session %s: %w", sessionID, err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update summary rows affected: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ClaimSummaryRequest records that a summary for this exact transcript
// has been requested. Returns false when an identical request was already
// claimed, so repeated saves never re-run the summarizer.
func (s *SQLiteStore) ClaimSummaryRequest(sessionID, promptHash string) (bool, error) {
	res, err := s.db.Exec(
		`INSERT OR IGNORE INTO summary_requests(session_id, prompt_hash) VALUES(?, ?)`,
		sessionID,
		promptHash,
	)
	if err != nil {
		return false, fmt.Errorf("claim summary request for session %s: %w", sessionID, err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim summary rows affected: %w", err)
	}
	return rows > 0, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
