package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Archive writes finished sessions to local markdown files, one file
// per session, as a human-readable copy alongside the database.
type Archive struct {
	dir string
	mu  sync.Mutex
}

func NewArchive(dir string) *Archive {
	return &Archive{dir: dir}
}

// Export writes the session document as markdown and returns the path.
// Re-exporting the same session overwrites the previous file.
func (a *Archive) Export(doc SessionDocument) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", a.dir, err)
	}

	name := fmt.Sprintf("%s-%s.md", doc.CreatedAt.Format("2006-01-02"), doc.ID)
	path := filepath.Join(a.dir, name)

	if err := os.WriteFile(path, []byte(formatSessionMarkdown(doc)), 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}

func formatSessionMarkdown(doc SessionDocument) string {
	var b strings.Builder

	title := doc.Title
	if title == "" {
		title = "Untitled session"
	}
	fmt.Fprintf(&b, "# %s\n\n", title)
	fmt.Fprintf(&b, "Recorded %s\n\n", doc.CreatedAt.Format("2006-01-02 15:04"))

	if doc.Summary != "" {
		b.WriteString("## Summary\n\n")
		b.WriteString(doc.Summary)
		b.WriteString("\n\n")
	}

	b.WriteString("## Transcript\n\n")
	if len(doc.Segments) == 0 {
		b.WriteString(doc.Transcript)
		b.WriteString("\n")
		return b.String()
	}

	for _, seg := range doc.Segments {
		fmt.Fprintf(&b, "- [%s] %s\n", formatClock(seg.RecordingTime), seg.Text)
	}
	return b.String()
}

func formatClock(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}
