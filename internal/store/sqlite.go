package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	log "github.com/llm-gate/llm-gate/internal/logging"
	_ "modernc.org/sqlite"
)

const (
	sqliteBatchSize     = 100
	sqliteFlushInterval = 5 * time.Second
	sqliteQueueSize     = 1000

	defaultRetentionDays = 30
)

// SQLiteBackend writes request logs in batches from a background loop and
// serves quota snapshots synchronously.
type SQLiteBackend struct {
	db            *sql.DB
	recordChan    chan RequestLog
	flushTicker   *time.Ticker
	cleanupTicker *time.Ticker
	stopChan      chan struct{}
	stopOnce      sync.Once
	wg            sync.WaitGroup
	retentionDays int
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS request_logs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	provider TEXT NOT NULL,
	model TEXT NOT NULL,
	api_key TEXT NOT NULL DEFAULT '',
	auth_id TEXT NOT NULL DEFAULT '',
	source TEXT NOT NULL DEFAULT '',
	requested_at TIMESTAMP NOT NULL,
	failed BOOLEAN NOT NULL DEFAULT 0,
	input_tokens INTEGER NOT NULL DEFAULT 0,
	output_tokens INTEGER NOT NULL DEFAULT 0,
	reasoning_tokens INTEGER NOT NULL DEFAULT 0,
	cached_tokens INTEGER NOT NULL DEFAULT 0,
	total_tokens INTEGER NOT NULL DEFAULT 0,
	latency_ms INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_logs_requested_at ON request_logs(requested_at);
CREATE INDEX IF NOT EXISTS idx_logs_provider_model ON request_logs(provider, model);

CREATE TABLE IF NOT EXISTS quota_cache (
	provider TEXT NOT NULL,
	auth_id TEXT NOT NULL,
	payload TEXT NOT NULL,
	fetched_at TIMESTAMP NOT NULL,
	PRIMARY KEY (provider, auth_id)
);
`

// OpenSQLite opens (creating if needed) the database at path and starts
// the background write and cleanup loops.
func OpenSQLite(path string, retentionDays int) (*SQLiteBackend, error) {
	if path == "" {
		return nil, fmt.Errorf("store: sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("store: create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=-64000")
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}

	// SQLite works best with a single writer connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: initialize schema: %w", err)
	}

	if retentionDays <= 0 {
		retentionDays = defaultRetentionDays
	}

	b := &SQLiteBackend{
		db:            db,
		recordChan:    make(chan RequestLog, sqliteQueueSize),
		flushTicker:   time.NewTicker(sqliteFlushInterval),
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
func (b *SQLiteBackend) Log(rec RequestLog) {
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
func (b *SQLiteBackend) SaveQuota(ctx context.Context, entry QuotaEntry) error {
	_, err := b.db.ExecContext(ctx, `
		INSERT INTO quota_cache (provider, auth_id, payload, fetched_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(provider, auth_id) DO UPDATE SET
			payload = excluded.payload,
			fetched_at = excluded.fetched_at
	`, entry.Provider, entry.AuthID, entry.Payload, entry.FetchedAt)
	return err
}

// Quota returns the cached snapshot for a credential, nil when absent.
func (b *SQLiteBackend) Quota(ctx context.Context, provider, authID string) (*QuotaEntry, error) {
	row := b.db.QueryRowContext(ctx, `
		SELECT payload, fetched_at FROM quota_cache
		WHERE provider = ? AND auth_id = ?
	`, provider, authID)

	entry := QuotaEntry{Provider: provider, AuthID: authID}
	if err := row.Scan(&entry.Payload, &entry.FetchedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

// GlobalStats aggregates request logs since the given time.
func (b *SQLiteBackend) GlobalStats(ctx context.Context, since time.Time) (*Stats, error) {
	row := b.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			SUM(CASE WHEN failed = 0 THEN 1 ELSE 0 END),
			SUM(CASE WHEN failed = 1 THEN 1 ELSE 0 END),
			COALESCE(SUM(total_tokens), 0)
		FROM request_logs
		WHERE requested_at >= ?
	`, since)

	var stats Stats
	var success, failure sql.NullInt64
	if err := row.Scan(&stats.TotalRequests, &success, &failure, &stats.TotalTokens); err != nil {
		return nil, fmt.Errorf("store: query global stats: %w", err)
	}
	stats.SuccessCount = success.Int64
	stats.FailureCount = failure.Int64
	return &stats, nil
}

// QueryModelStats aggregates request logs per model since the given time.
func (b *SQLiteBackend) QueryModelStats(ctx context.Context, since time.Time) ([]ModelStats, error) {
	rows, err := b.db.QueryContext(ctx, `
		SELECT
			COALESCE(NULLIF(model, ''), 'unknown') as model,
			COALESCE(NULLIF(provider, ''), 'unknown') as provider,
			COUNT(*) as requests,
			SUM(CASE WHEN failed = 1 THEN 1 ELSE 0 END) as failure_count,
			COALESCE(SUM(total_tokens), 0) as total_tokens
		FROM request_logs
		WHERE requested_at >= ?
		GROUP BY model, provider
		ORDER BY requests DESC
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

// Close flushes pending records and closes the database.
func (b *SQLiteBackend) Close() error {
	if b == nil {
		return nil
	}
	var err error
	b.stopOnce.Do(func() {
		close(b.stopChan)
		b.flushTicker.Stop()
		b.cleanupTicker.Stop()
		b.wg.Wait()
		err = b.db.Close()
	})
	return err
}

func (b *SQLiteBackend) writeLoop() {
	defer b.wg.Done()

	batch := make([]RequestLog, 0, sqliteBatchSize)

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
			if len(batch) >= sqliteBatchSize {
				flush()
			}
		case <-b.flushTicker.C:
			flush()
		case <-b.stopChan:
			for {
				select {
				case rec := <-b.recordChan:
					batch = append(batch, rec)
					if len(batch) >= sqliteBatchSize {
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

func (b *SQLiteBackend) writeBatch(ctx context.Context, records []RequestLog) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO request_logs (
			provider, model, api_key, auth_id, source, requested_at, failed,
			input_tokens, output_tokens, reasoning_tokens, cached_tokens,
			total_tokens, latency_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		_, err := stmt.ExecContext(ctx,
			rec.Provider, rec.Model, rec.APIKey, rec.AuthID, rec.Source,
			rec.RequestedAt, rec.Failed, rec.InputTokens, rec.OutputTokens,
			rec.ReasoningTokens, rec.CachedTokens, rec.TotalTokens, rec.LatencyMS,
		)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert record: %w", err)
		}
	}
	return tx.Commit()
}

func (b *SQLiteBackend) cleanupLoop() {
	defer b.wg.Done()

	for {
		select {
		case <-b.cleanupTicker.C:
			cutoff := time.Now().AddDate(0, 0, -b.retentionDays)
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			res, err := b.db.ExecContext(ctx, `DELETE FROM request_logs WHERE requested_at < ?`, cutoff)
			cancel()
			if err != nil {
				log.Errorf("failed to clean up old request logs: %v", err)
				continue
			}
			if n, _ := res.RowsAffected(); n > 0 {
				log.Infof("cleaned up %d request logs older than %d days", n, b.retentionDays)
			}
		case <-b.stopChan:
			return
		}
	}
}
