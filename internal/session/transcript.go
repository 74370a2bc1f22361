package session

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/drover-ai/drover/internal/config"
)

// TranscriptWriter persists session transcripts to disk. Files are
// written 0600 since conversations may contain tool output from
// private files.
type TranscriptWriter struct {
	dir string
}

// NewTranscriptWriter writes under dir, or the default data directory
// when dir is empty.
func NewTranscriptWriter(dir string) *TranscriptWriter {
	if dir == "" {
		dir = filepath.Join(config.DataDir(), "transcripts")
	}
	return &TranscriptWriter{dir: dir}
}

// Write renders the session history to a markdown file named after the
// session ID and returns the path.
func (w *TranscriptWriter) Write(s *Session) (string, error) {
	if err := os.MkdirAll(w.dir, 0700); err != nil {
		return "", fmt.Errorf("create transcript directory: %w", err)
	}

	path := filepath.Join(w.dir, s.ID+".md")

	var sb strings.Builder
	fmt.Fprintf(&sb, "# Session %s\n\nStarted %s\n", s.ID, s.CreatedAt.Format("2006-01-02 15:04:05"))

	for _, msg := range s.History() {
		fmt.Fprintf(&sb, "\n## %s\n\n", msg.Role)
		if msg.Content != "" {
			sb.WriteString(msg.Content)
			sb.WriteString("\n")
		}
		for _, call := range msg.ToolCalls {
			fmt.Fprintf(&sb, "\n> tool call %s: %s\n", call.ID, call.Name)
		}
		if msg.Result != nil {
			status := "ok"
			if !msg.Result.Success {
				status = "failed: " + msg.Result.Error
			}
			fmt.Fprintf(&sb, "\n> tool result %s (%s)\n", msg.Result.CallID, status)
			if msg.Result.Output != "" {
				fmt.Fprintf(&sb, "\n```\n%s\n```\n", truncate(msg.Result.Output, 4000))
			}
		}
	}

	if err := os.WriteFile(path, []byte(sb.String()), 0600); err != nil {
		return "", fmt.Errorf("write transcript: %w", err)
	}
	return path, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "\n... (truncated)"
}
