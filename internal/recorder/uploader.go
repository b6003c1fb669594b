package recorder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/harshbhati1/syncscribe/internal/capture"
	"github.com/harshbhati1/syncscribe/internal/storage"
	"github.com/harshbhati1/syncscribe/internal/transcript"
)

// TokenSource supplies the bearer token attached to every request.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource backed by a fixed string. An empty token
// sends no Authorization header.
type StaticToken string

func (s StaticToken) Token(_ context.Context) (string, error) {
	return string(s), nil
}

// UploadMeta carries the per-chunk fields that ride alongside the audio.
type UploadMeta struct {
	Timestamp     time.Time
	RecordingTime int
}

// Uploader delivers one encoded chunk and returns the segment the server
// produced for it. Implementations never retry: a failed chunk's slot is
// filled client-side.
type Uploader interface {
	Upload(ctx context.Context, chunk capture.AudioChunk, meta UploadMeta) (transcript.Segment, error)
}

// Persister saves a complete session document.
type Persister interface {
	Save(ctx context.Context, doc storage.SessionDocument) error
}

const defaultUploadTimeout = 60 * time.Second

// HTTPUploader speaks the multipart chunk-ingestion contract and the
// session-document save endpoint of a syncscribed server.
type HTTPUploader struct {
	baseURL string
	tokens  TokenSource
	client  *http.Client
}

func NewHTTPUploader(baseURL string, tokens TokenSource) *HTTPUploader {
	return &HTTPUploader{
		baseURL: strings.TrimRight(baseURL, "/"),
		tokens:  tokens,
		client:  &http.Client{Timeout: defaultUploadTimeout},
	}
}

func (u *HTTPUploader) Upload(ctx context.Context, chunk capture.AudioChunk, meta UploadMeta) (transcript.Segment, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	// The server reads the codec off the part's Content-Type, so the
	// part is built by hand instead of CreateFormFile (which pins
	// application/octet-stream).
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="audio_data"; filename="chunk-%04d%s"`,
		chunk.Seq, extensionForMIME(chunk.MIMEType)))
	if chunk.MIMEType != "" {
		header.Set("Content-Type", chunk.MIMEType)
	}
	fw, err := mw.CreatePart(header)
	if err != nil {
		return transcript.Segment{}, &UploadError{Message: "build multipart body", Err: err}
	}
	if _, err := fw.Write(chunk.Data); err != nil {
		return transcript.Segment{}, &UploadError{Message: "write audio part", Err: err}
	}
	if err := mw.WriteField("is_final", strconv.FormatBool(chunk.IsFinal)); err != nil {
		return transcript.Segment{}, &UploadError{Message: "write is_final field", Err: err}
	}
	if err := mw.WriteField("timestamp", meta.Timestamp.UTC().Format(time.RFC3339Nano)); err != nil {
		return transcript.Segment{}, &UploadError{Message: "write timestamp field", Err: err}
	}
	if err := mw.WriteField("recording_time", strconv.Itoa(meta.RecordingTime)); err != nil {
		return transcript.Segment{}, &UploadError{Message: "write recording_time field", Err: err}
	}
	if err := mw.Close(); err != nil {
		return transcript.Segment{}, &UploadError{Message: "finalize multipart body", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.baseURL+"/api/transcribe", &body)
	if err != nil {
		return transcript.Segment{}, &UploadError{Message: "build request", Err: err}
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if err := u.authorize(ctx, req); err != nil {
		return transcript.Segment{}, err
	}

	resp, err := u.client.Do(req)
	if err != nil {
		return transcript.Segment{}, &UploadError{Message: err.Error(), Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return transcript.Segment{}, &UploadError{StatusCode: resp.StatusCode, Message: "read response body", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return transcript.Segment{}, &UploadError{
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(respBody)),
		}
	}

	var parsed struct {
		Success bool               `json:"success"`
		Segment transcript.Segment `json:"segment"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return transcript.Segment{}, &UploadError{StatusCode: resp.StatusCode, Message: "malformed response body", Err: err}
	}
	if !parsed.Success {
		return transcript.Segment{}, &UploadError{StatusCode: resp.StatusCode, Message: "server reported failure"}
	}

	return parsed.Segment, nil
}

// Save persists the session document via PUT /api/sessions/{id}.
func (u *HTTPUploader) Save(ctx context.Context, doc storage.SessionDocument) error {
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal session document: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, u.baseURL+"/api/sessions/"+doc.ID, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build save request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if err := u.authorize(ctx, req); err != nil {
		return err
	}

	resp, err := u.client.Do(req)
	if err != nil {
		return fmt.Errorf("save session %s: %w", doc.ID, err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("save session %s: server returned status %d", doc.ID, resp.StatusCode)
	}
	return nil
}

func (u *HTTPUploader) authorize(ctx context.Context, req *http.Request) error {
	if u.tokens == nil {
		return nil
	}
	token, err := u.tokens.Token(ctx)
	if err != nil {
		return &UploadError{Message: "fetch auth token", Err: err}
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return nil
}

func extensionForMIME(mimeType string) string {
	switch {
	case strings.HasPrefix(mimeType, "audio/ogg"):
		return ".ogg"
	case strings.HasPrefix(mimeType, "audio/wav"):
		return ".wav"
	case strings.HasPrefix(mimeType, "audio/webm"):
		return ".webm"
	default:
		return ".bin"
	}
}
