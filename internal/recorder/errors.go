package recorder

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyRecording is returned by Start when a session is in
	// progress. One controller drives at most one session at a time.
	ErrAlreadyRecording = errors.New("a recording session is already in progress")

	// ErrNotRecording is returned by Pause, Resume and Stop when no
	// session is active.
	ErrNotRecording = errors.New("no recording session in progress")
)

// UploadError is a failed attempt to deliver one chunk to the server.
// It is never fatal to the session: the chunk's slot in the transcript is
// filled with a fallback segment and recording continues.
type UploadError struct {
	// StatusCode is the HTTP status, or 0 when the request never got a
	// response.
	StatusCode int
	Message    string
	Err        error
}

func (e *UploadError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Message != "":
		return fmt.Sprintf("chunk upload failed (status %d): %s", e.StatusCode, e.Message)
	case e.StatusCode != 0:
		return fmt.Sprintf("chunk upload failed (status %d)", e.StatusCode)
	case e.Message != "":
		return "chunk upload failed: " + e.Message
	default:
		return "chunk upload failed"
	}
}

func (e *UploadError) Unwrap() error {
	return e.Err
}
