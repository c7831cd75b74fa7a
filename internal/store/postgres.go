package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	log "github.com/llm-gate/llm-gate/internal/logging"
)

const (
	pgBatchSize     = 100
	pgFlushInterval = 5 * time.Second
	pgQueueSize     = 1000
)

// PostgresBackend mirrors the SQLite backend on a shared database.
type PostgresBackend struct {
	pool          *pgxpool.Pool
	recordChan    chan RequestLog
	flushTicker   *time.Ticker
	cleanupTicker *time.Ticker
	stopChan      chan struct{}
	stopOnce      sync.Once
	wg            sync.WaitGroup
	retentionDays int
}

const pgSchema = `
CREATE TABLE IF NOT EXISTS request_logs (
	id BIGSERIAL PRIMARY KEY,
	provider TEXT NOT NULL,
	model TEXT NOT NULL,
	api_key TEXT NOT NULL DEFAULT '',
	auth_id TEXT NOT NULL DEFAULT '',
	source TEXT NOT NULL DEFAULT '',
	requested_at TIMESTAMPTZ NOT NULL,
	failed BOOLEAN NOT NULL DEFAULT FALSE,
	input_tokens BIGINT NOT NULL DEFAULT 0,
	output_tokens BIGINT NOT NULL DEFAULT 0,
	reasoning_tokens BIGINT NOT NULL DEFAULT 0,
	cached_tokens BIGINT NOT NULL DEFAULT 0,
	total_tokens BIGINT NOT NULL DEFAULT 0,
	latency_ms BIGINT NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_logs_requested_at ON request_logs(requested_at);
CREATE INDEX IF NOT EXISTS idx_logs_provider_model ON request_logs(provider, model);

CREATE TABLE IF NOT EXISTS quota_cache (
	provider TEXT NOT NULL,
	auth_id TEXT NOT NULL,
	payload TEXT NOT NULL,
	fetched_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (provider, auth_id)
);
`

// OpenPostgres connects to dsn, ensures the schema, and starts the
// background write and cleanup loops.
func OpenPostgres(ctx context.Context, dsn string, retentionDays int) (*PostgresBackend, error) {
	if dsn == "" {
		return nil, fmt.Errorf("store: postgres dsn is required")
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("store: connect postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, pgSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: initialize schema: %w", err)
	}

	if retentionDays <= 0 {
		retentionDays = defaultRetentionDays
	}

	b := &PostgresBackend{
		pool:          pool,
		recordChan:    make(chan RequestLog, pgQueueSize),
		flushTicker:   time.NewTicker(pgFlushInterval),
		cleanupTicker: time.NewTicker(24 * time.Hour),
		stopChan:      make(chan struct{}),
		retentionDays: retentionDays,
	}
	b.wg.Add(2)
	go b.writeLoop()
	go b.cleanupLoop()
	return b, nil
}

// Log enqueues a record without blocking; a full queue drops the record.
func (b *PostgresBackend) Log(rec RequestLog) {
	if b == nil {
		return
	}
	select {
	case b.recordChan <- rec:
	default:
		log.Warnf("request log queue full, dropping record for %s/%s", rec.Provider, rec.Model)
	}
}

// SaveQuota upserts a quota snapshot.
func (b *PostgresBackend) SaveQuota(ctx context.Context, entry QuotaEntry) error {
	_, err := b.pool.Exec(ctx, `
		INSERT INTO quota_cache (provider, auth_id, payload, fetched_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (provider, auth_id) DO UPDATE SET
			payload = EXCLUDED.payload,
			fetched_at = EXCLUDED.fetched_at
	`, entry.Provider, entry.AuthID, entry.Payload, entry.FetchedAt)
	return err
}

// Quota returns the cached snapshot for a credential, nil when absent.
func (b *PostgresBackend) Quota(ctx context.Context, provider, authID string) (*QuotaEntry, error) {
	row := b.pool.QueryRow(ctx, `
		SELECT payload, fetched_at FROM quota_cache
		WHERE provider = $1 AND auth_id = $2
	`, provider, authID)

	entry := QuotaEntry{Provider: provider, AuthID: authID}
	if err := row.Scan(&entry.Payload, &entry.FetchedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

// GlobalStats aggregates request logs since the given time.
func (b *PostgresBackend) GlobalStats(ctx context.Context, since time.Time) (*Stats, error) {
	row := b.pool.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE NOT failed),
			COUNT(*) FILTER (WHERE failed),
			COALESCE(SUM(total_tokens), 0)
		FROM request_logs
		WHERE requested_at >= $1
	`, since)

	var stats Stats
	if err := row.Scan(&stats.TotalRequests, &stats.SuccessCount, &stats.FailureCount, &stats.TotalTokens); err != nil {
		return nil, fmt.Errorf("store: query global stats: %w", err)
	}
	return &stats, nil
}

// QueryModelStats aggregates request logs per model since the given time.
func (b *PostgresBackend) QueryModelStats(ctx context.Context, since time.Time) ([]ModelStats, error) {
	rows, err := b.pool.Query(ctx, `
		SELECT
			COALESCE(NULLIF(model, ''), 'unknown'),
			COALESCE(NULLIF(provider, ''), 'unknown'),
			COUNT(*),
			COUNT(*) FILTER (WHERE failed),
			COALESCE(SUM(total_tokens), 0)
		FROM request_logs
		WHERE requested_at >= $1
		GROUP BY 1, 2
		ORDER BY 3 DESC
	`, since)
	if err != nil {
		return nil, fmt.Errorf("store: query model stats: %w", err)
	}
	defer rows.Close()

	var results []ModelStats
	for rows.Next() {
		var ms ModelStats
		if err := rows.Scan(&ms.Model, &ms.Provider, &ms.Requests, &ms.FailureCount, &ms.TotalTokens); err != nil {
			return nil, err
		}
		results = append(results, ms)
	}
	return results, rows.Err()
}

// Close flushes pending records and closes the pool.
func (b *PostgresBackend) Close() error {
	if b == nil {
		return nil
	}
	b.stopOnce.Do(func() {
		close(b.stopChan)
		b.flushTicker.Stop()
		b.cleanupTicker.Stop()
		b.wg.Wait()
		b.pool.Close()
	})
	return nil
}

func (b *PostgresBackend) writeLoop() {
	defer b.wg.Done()

	batch := make([]RequestLog, 0, pgBatchSize)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := b.writeBatch(ctx, batch); err != nil {
			log.Errorf("failed to write request log batch: %v", err)
		}
		cancel()
		batch = batch[:0]
	}

	for {
		select {
		case rec := <-b.recordChan:
			batch = append(batch, rec)
			if len(batch) >= pgBatchSize {
				flush()
			}
		case <-b.flushTicker.C:
			flush()
		case <-b.stopChan:
			for {
				select {
				case rec := <-b.recordChan:
					batch = append(batch, rec)
					if len(batch) >= pgBatchSize {
						flush()
					}
				default:
					flush()
					return
				}
			}
		}
	}
}

func (b *PostgresBackend) writeBatch(ctx context.Context, records []RequestLog) error {
	pgBatch := &pgx.Batch{}
	for _, rec := range records {
		pgBatch.Queue(`
			INSERT INTO request_logs (
				provider, model, api_key, auth_id, source, requested_at, failed,
				input_tokens, output_tokens, reasoning_tokens, cached_tokens,
				total_tokens, latency_ms
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		`, rec.Provider, rec.Model, rec.APIKey, rec.AuthID, rec.Source,
			rec.RequestedAt, rec.Failed, rec.InputTokens, rec.OutputTokens,
			rec.ReasoningTokens, rec.CachedTokens, rec.TotalTokens, rec.LatencyMS)
	}
	return b.pool.SendBatch(ctx, pgBatch).Close()
}

func (b *PostgresBackend) cleanupLoop() {
	defer b.wg.Done()

	for {
		select {
		case <-b.cleanupTicker.C:
			cutoff := time.Now().AddDate(0, 0, -b.retentionDays)
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			tag, err := b.pool.Exec(ctx, `DELETE FROM request_logs WHERE requested_at < $1`, cutoff)
			cancel()
			if err != nil {
				log.Errorf("failed to clean up old request logs: %v", err)
				continue
			}
			if n := tag.RowsAffected(); n > 0 {
				log.Infof("cleaned up %d request logs older than %d days", n, b.retentionDays)
			}
		case <-b.stopChan:
			return
		}
	}
}
