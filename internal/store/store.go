// Package store persists request logs and cached provider quota snapshots.
// Two backends exist: SQLite for the default single-node install and
// Postgres for shared deployments.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/llm-gate/llm-gate/internal/config"
)

// RequestLog is one gateway request, recorded after the response finishes.
type RequestLog struct {
	Provider        string
	Model           string
	APIKey          string
	AuthID          string
	Source          string
	RequestedAt     time.Time
	Failed          bool
	InputTokens     int64
	OutputTokens    int64
	ReasoningTokens int64
	CachedTokens    int64
	TotalTokens     int64
	LatencyMS       int64
}

// QuotaEntry is a provider quota snapshot keyed by credential.
type QuotaEntry struct {
	Provider  string
	AuthID    string
	Payload   string
	FetchedAt time.Time
}

// Stats aggregates request logs over a window.
type Stats struct {
	TotalRequests int64
	SuccessCount  int64
	FailureCount  int64
	TotalTokens   int64
}

// ModelStats aggregates request logs per model.
type ModelStats struct {
	Model        string
	Provider     string
	Requests     int64
	FailureCount int64
	TotalTokens  int64
}

// Backend is the persistence contract. Log is asynchronous and never
// blocks the request path; the remaining calls hit the database directly.
type Backend interface {
	Log(rec RequestLog)
	SaveQuota(ctx context.Context, entry QuotaEntry) error
	Quota(ctx context.Context, provider, authID string) (*QuotaEntry, error)
	GlobalStats(ctx context.Context, since time.Time) (*Stats, error)
	QueryModelStats(ctx context.Context, since time.Time) ([]ModelStats, error)
	Close() error
}

// Open builds the backend named by cfg.
func Open(ctx context.Context, cfg config.UsageConfig) (Backend, error) {
	switch cfg.Backend {
	case "", "sqlite":
		return OpenSQLite(cfg.Path, cfg.RetentionDays)
	case "postgres":
		return OpenPostgres(ctx, cfg.DSN, cfg.RetentionDays)
	default:
		return nil, fmt.Errorf("store: unknown backend %q", cfg.Backend)
	}
}
