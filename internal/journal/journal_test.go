package journal

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/capturelabs/capture-core/internal/config"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestOpenEphemeral(t *testing.T) {
	cfg := config.JournalConfig{Mode: "ephemeral"}
	s, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	if err := s.Record(context.Background(), Entry{RequestID: "req-1", ClientID: "client-a", Status: "success"}); err != nil {
		t.Fatalf("ephemeral record should be a no-op: %v", err)
	}
	entries, err := s.ListClient(context.Background(), "client-a", 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if entries != nil {
		t.Fatalf("ephemeral store should hold nothing, got %d entries", len(entries))
	}
}

func TestRecordAndList(t *testing.T) {
	tmp := t.TempDir()
	cfg := config.JournalConfig{Mode: "persistent", Path: filepath.Join(tmp, "journal.db")}
	s, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	entry := Entry{
		RequestID:  "req-1",
		ClientID:   "client-a",
		Status:     "success",
		TextChars:  18,
		DurationMS: 230,
	}
	if err := s.Record(context.Background(), entry); err != nil {
		t.Fatalf("record: %v", err)
	}
	entries, err := s.ListClient(context.Background(), "client-a", 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].RequestID != "req-1" || entries[0].TextChars != 18 {
		t.Fatalf("unexpected entry: %+v", entries[0])
	}
}

func TestPruneByDaysAndRecords(t *testing.T) {
	tmp := t.TempDir()
	cfg := config.JournalConfig{
		Mode:          "persistent",
		Path:          filepath.Join(tmp, "journal.db"),
		RetentionDays: 1,
		MaxRecords:    1,
	}
	s, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	s.clock = func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }
	if err := s.Record(context.Background(), Entry{RequestID: "old", ClientID: "client-a", Status: "success"}); err != nil {
		t.Fatalf("record: %v", err)
	}

	s.clock = func() time.Time { return time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC) }
	if err := s.Record(context.Background(), Entry{RequestID: "new", ClientID: "client-a", Status: "success"}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := s.Prune(context.Background()); err != nil {
		t.Fatalf("prune: %v", err)
	}

	entries, err := s.ListClient(context.Background(), "client-a", 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 1 || entries[0].RequestID != "new" {
		t.Fatalf("expected only the recent entry to survive, got %+v", entries)
	}
}
