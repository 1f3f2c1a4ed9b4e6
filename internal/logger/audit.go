package logger

import (
	"crypto/rand"
	"encoding/json"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/gzhole/cmdauditor/internal/redact"
	"github.com/oklog/ulid/v2"
)

const defaultMaxLogBytes = 5 << 20

// AuditEvent is one line of the JSONL audit log: one checked command.
type AuditEvent struct {
	ID          string   `json:"id"`
	Timestamp   string   `json:"timestamp"`
	Command     string   `json:"command"`
	Cwd         string   `json:"cwd,omitempty"`
	Origin      string   `json:"origin"` // check, hook, run, scan
	Decision    string   `json:"decision"`
	Source      string   `json:"source,omitempty"`
	RuleID      string   `json:"rule_id,omitempty"`
	Replacement string   `json:"replacement,omitempty"`
	Message     string   `json:"message,omitempty"`
	Reason      string   `json:"reason,omitempty"`
	Fallback    string   `json:"fallback,omitempty"`
	Suspicious  []string `json:"suspicious,omitempty"`
	DurationMS  int64    `json:"duration_ms"`
	Error       string   `json:"error,omitempty"`
}

type AuditLogger struct {
	file *os.File
	mu   sync.Mutex
}

// New opens path for appending. A file already past the size limit is
// moved to path.1 first.
func New(path string) (*AuditLogger, error) {
	if info, err := os.Stat(path); err == nil && info.Size() >= defaultMaxLogBytes {
		if err := os.Rename(path, path+".1"); err != nil {
			return nil, err
		}
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, err
	}
	return &AuditLogger{file: file}, nil
}

// Log fills ID and Timestamp when empty, redacts secrets and appends
// the event.
func (l *AuditLogger) Log(event AuditEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if event.ID == "" {
		event.ID = NewEventID()
	}
	if event.Timestamp == "" {
		event.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}

	event.Command = redact.Redact(event.Command)
	event.Replacement = redact.Redact(event.Replacement)
	event.Message = redact.Redact(event.Message)
	if event.Error != "" {
		event.Error = redact.Redact(event.Error)
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	data = append(data, '\n')
	_, err = l.file.Write(data)
	return err
}

func (l *AuditLogger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// NewEventID returns a new ULID event identifier.
func NewEventID() string {
	id, err := ulid.New(ulid.Timestamp(time.Now().UTC()), rand.Reader)
	if err == nil {
		return id.String()
	}

	slog.Error("audit: generate event id", "error", err)
	return ulid.Make().String()
}
