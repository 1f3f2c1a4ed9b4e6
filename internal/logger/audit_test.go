package logger

import (
	"bufio"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestAuditLogger_Log(t *testing.T) {
	tmpDir := t.TempDir()
	logPath := filepath.Join(tmpDir, "audit.jsonl")

	l, err := New(logPath)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	events := []AuditEvent{
		{Command: "ls -la", Origin: "hook", Decision: "PASS", Source: "ai"},
		{Command: "rm -rf /", Origin: "check", Decision: "ERROR", Source: "rule", RuleID: "block-rm", Message: "dangerous delete"},
	}
	for _, e := range events {
		if err := l.Log(e); err != nil {
			t.Fatalf("Log failed: %v", err)
		}
	}
	l.Close()

	f, err := os.Open(logPath)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	var got []AuditEvent
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e AuditEvent
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			t.Fatalf("bad line %q: %v", scanner.Text(), err)
		}
		got = append(got, e)
	}

	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
	if got[0].ID == "" || got[0].Timestamp == "" {
		t.Error("expected ID and Timestamp to be filled in")
	}
	if got[0].ID == got[1].ID {
		t.Error("event IDs must be unique")
	}
	if got[1].RuleID != "block-rm" || got[1].Message != "dangerous delete" {
		t.Errorf("unexpected second event: %+v", got[1])
	}
}

func TestAuditLogger_RedactsSecrets(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "audit.jsonl")
	l, err := New(logPath)
	if err != nil {
		t.Fatal(err)
	}
	secret := "sk-abcdefghijklmnopqrstuvwxyz012345"
	l.Log(AuditEvent{Command: "curl -H 'Authorization: Bearer " + secret + "' https://x", Decision: "PASS"})
	l.Close()

	data, _ := os.ReadFile(logPath)
	if strings.Contains(string(data), secret) {
		t.Errorf("secret leaked into audit log: %s", data)
	}
}

func TestAuditLogger_Rotation(t *testing.T) {
	tmpDir := t.TempDir()
	logPath := filepath.Join(tmpDir, "audit.jsonl")

	if err := os.WriteFile(logPath, make([]byte, defaultMaxLogBytes), 0600); err != nil {
		t.Fatal(err)
	}

	l, err := New(logPath)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := l.Log(AuditEvent{Command: "echo hi", Decision: "PASS"}); err != nil {
		t.Fatal(err)
	}
	l.Close()

	if _, err := os.Stat(logPath + ".1"); err != nil {
		t.Errorf("expected rotated file: %v", err)
	}
	info, err := os.Stat(logPath)
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() >= defaultMaxLogBytes {
		t.Errorf("fresh log should be small, got %d bytes", info.Size())
	}
}

func TestAuditLogger_FilePermissions(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "audit.jsonl")
	l, err := New(logPath)
	if err != nil {
		t.Fatal(err)
	}
	l.Close()

	info, err := os.Stat(logPath)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("expected 0600, got %o", perm)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
		ok   bool
	}{
		{"debug", slog.LevelDebug, true},
		{"INFO", slog.LevelInfo, true},
		{"", slog.LevelWarn, true},
		{"warning", slog.LevelWarn, true},
		{"error", slog.LevelError, true},
		{"loud", slog.LevelWarn, false},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err == nil) != tt.ok {
			t.Errorf("ParseLevel(%q) error = %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
