package usage

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "usage.db"))
	if err != nil {
		t.Fatalf("NewStore() error: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_RecordAndSummary(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	runs := []Run{
		{ID: "a", CreatedAt: now, Kind: "chat", Model: "claude-haiku-4-5-20251001", Rounds: 2, InputTokens: 100, OutputTokens: 40, DurationMS: 1200, Status: "complete"},
		{ID: "b", CreatedAt: now, Kind: "action", Model: "claude-haiku-4-5-20251001", Rounds: 1, InputTokens: 50, OutputTokens: 10, DurationMS: 700, Status: "error"},
	}
	for _, run := range runs {
		if err := s.Record(ctx, run); err != nil {
			t.Fatalf("Record(%s) error: %v", run.ID, err)
		}
	}

	got, err := s.Summary(now.Add(-time.Minute), now.Add(time.Minute))
	if err != nil {
		t.Fatalf("Summary() error: %v", err)
	}
	if got.Runs != 2 || got.Rounds != 3 || got.InputTokens != 150 || got.OutputTokens != 50 {
		t.Errorf("Summary = %+v, want 2 runs, 3 rounds, 150/50 tokens", got)
	}
}

func TestStore_SummaryWindowExcludesOutside(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	s.Record(ctx, Run{ID: "old", CreatedAt: now.Add(-48 * time.Hour), Kind: "chat", Model: "m", InputTokens: 999, Status: "complete"})
	s.Record(ctx, Run{ID: "new", CreatedAt: now, Kind: "chat", Model: "m", InputTokens: 10, Status: "complete"})

	got, err := s.Summary(now.Add(-time.Hour), now.Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if got.Runs != 1 || got.InputTokens != 10 {
		t.Errorf("Summary = %+v, want only the recent run", got)
	}
}

func TestStore_TokensToday(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	s.Record(ctx, Run{ID: "today", CreatedAt: now, Kind: "chat", Model: "m", InputTokens: 30, OutputTokens: 20, Status: "complete"})
	s.Record(ctx, Run{ID: "yesterday", CreatedAt: now.Add(-25 * time.Hour), Kind: "chat", Model: "m", InputTokens: 500, Status: "complete"})

	got, err := s.TokensToday(now)
	if err != nil {
		t.Fatal(err)
	}
	if got != 50 {
		t.Errorf("TokensToday() = %d, want 50", got)
	}
}

func TestStore_DuplicateIDRejected(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	run := Run{ID: "dup", Kind: "chat", Model: "m", Status: "complete"}
	if err := s.Record(ctx, run); err != nil {
		t.Fatal(err)
	}
	if err := s.Record(ctx, run); err == nil {
		t.Error("expected primary key violation for duplicate run ID")
	}
}
