package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/llm-gate/llm-gate/internal/config"
)

func TestSQLiteLogAndStats(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	b, err := OpenSQLite(path, 7)
	if err != nil {
		t.Fatal(err)
	}
	now := time.Now().UTC()

	b.Log(RequestLog{
		Provider: "gemini", Model: "gemini-2.5-pro", AuthID: "a@example.com",
		RequestedAt: now, InputTokens: 10, OutputTokens: 5, TotalTokens: 15, LatencyMS: 120,
	})
	b.Log(RequestLog{
		Provider: "claude", Model: "claude-sonnet-4-5", AuthID: "b@example.com",
		RequestedAt: now, Failed: true, LatencyMS: 40,
	})

	// Close drains the async queue so the rows become visible.
	if err := b.Close(); err != nil {
		t.Fatal(err)
	}

	reopen, err := OpenSQLite(path, 7)
	if err != nil {
		t.Fatal(err)
	}
	defer reopen.Close()
	ctx := context.Background()

	stats, err := reopen.GlobalStats(ctx, now.Add(-time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalRequests != 2 || stats.SuccessCount != 1 || stats.FailureCount != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.TotalTokens != 15 {
		t.Errorf("total tokens = %d", stats.TotalTokens)
	}

	models, err := reopen.QueryModelStats(ctx, now.Add(-time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if len(models) != 2 {
		t.Fatalf("model stats = %+v", models)
	}
	for _, ms := range models {
		if ms.Model == "" || ms.Provider == "" {
			t.Errorf("model stats entry = %+v", ms)
		}
	}
}

func TestSQLiteQuotaUpsert(t *testing.T) {
	b, err := OpenSQLite(filepath.Join(t.TempDir(), "test.db"), 7)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()
	ctx := context.Background()

	if entry, err := b.Quota(ctx, "gemini", "a@example.com"); err != nil || entry != nil {
		t.Fatalf("empty quota = %+v, %v", entry, err)
	}

	first := QuotaEntry{Provider: "gemini", AuthID: "a@example.com", Payload: `{"models":1}`, FetchedAt: time.Now().UTC()}
	if err := b.SaveQuota(ctx, first); err != nil {
		t.Fatal(err)
	}
	second := first
	second.Payload = `{"models":2}`
	second.FetchedAt = first.FetchedAt.Add(time.Minute)
	if err := b.SaveQuota(ctx, second); err != nil {
		t.Fatal(err)
	}

	got, err := b.Quota(ctx, "gemini", "a@example.com")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.Payload != `{"models":2}` {
		t.Errorf("quota = %+v, want latest payload", got)
	}
}

func TestOpenSQLiteRequiresPath(t *testing.T) {
	if _, err := OpenSQLite("", 0); err == nil {
		t.Error("expected error for empty path")
	}
}

func TestOpenUnknownBackend(t *testing.T) {
	_, err := Open(context.Background(), config.UsageConfig{Backend: "mysql"})
	if err == nil {
		t.Error("expected error for unknown backend")
	}
}
