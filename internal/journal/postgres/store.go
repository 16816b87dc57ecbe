// Package postgres provides a PostgreSQL-backed journal.Recorder.
//
// All entries live in a single journal_entries table; the per-feature
// analysis results are stored as JSONB so the schema does not have to chase
// every new analysis kind. A GIN full-text index over the transcript backs
// Search.
//
// Usage:
//
//	store, err := postgres.NewStore(ctx, dsn)
//	if err != nil { … }
//	defer store.Close()
//
//	_ = store.Record(ctx, entry)
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/echolotlabs/echolot/internal/journal"
	"github.com/echolotlabs/echolot/pkg/analysis"
)

// Compile-time interface check.
var _ journal.Recorder = (*Store)(nil)

const ddlJournalEntries = `
CREATE TABLE IF NOT EXISTS journal_entries (
    id            UUID         PRIMARY KEY,
    created_at    TIMESTAMPTZ  NOT NULL DEFAULT now(),
    transcript    TEXT         NOT NULL,
    speech_ns     BIGINT       NOT NULL DEFAULT 0,
    total_ns      BIGINT       NOT NULL DEFAULT 0,
    provider      TEXT         NOT NULL DEFAULT '',
    emotion       JSONB,
    emotion_point JSONB,
    tone          JSONB,
    fallacies     JSONB,
    gfk           JSONB,
    distortions   JSONB,
    four_sides    JSONB,
    topic         JSONB,
    status        JSONB        NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_journal_entries_created_at
    ON journal_entries (created_at DESC);

CREATE INDEX IF NOT EXISTS idx_journal_entries_fts
    ON journal_entries USING GIN (to_tsvector('simple', transcript));
`

// Store is the PostgreSQL-backed journal recorder. It holds a single
// [pgxpool.Pool]; all operations are safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore establishes a connection pool to the PostgreSQL database at dsn
// and runs the schema migration so the journal_entries table exists.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("journal store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("journal store: ping: %w", err)
	}

	if _, err := pool.Exec(ctx, ddlJournalEntries); err != nil {
		pool.Close()
		return nil, fmt.Errorf("journal store: migrate: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Close releases all connections held by the underlying pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Ping reports whether the database is reachable. Used by readiness checks.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("journal store: ping: %w", err)
	}
	return nil
}

const entryColumns = `
	id, created_at, transcript, speech_ns, total_ns, provider,
	emotion, emotion_point, tone, fallacies, gfk, distortions,
	four_sides, topic, status`

// Record implements [journal.Recorder].
func (s *Store) Record(ctx context.Context, entry journal.Entry) error {
	const q = `
		INSERT INTO journal_entries
		    (id, created_at, transcript, speech_ns, total_ns, provider,
		     emotion, emotion_point, tone, fallacies, gfk, distortions,
		     four_sides, topic, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	args := []any{
		entry.ID,
		entry.CreatedAt,
		entry.Transcript,
		entry.Speech.Nanoseconds(),
		entry.Total.Nanoseconds(),
		entry.Provider,
	}
	for _, v := range []any{
		entry.Emotion, entry.EmotionPoint, entry.Tone, entry.Fallacies,
		entry.GFK, entry.Distortions, entry.FourSides, entry.Topic,
		entry.Status,
	} {
		arg, err := jsonArg(v)
		if err != nil {
			return fmt.Errorf("journal store: encode entry: %w", err)
		}
		args = append(args, arg)
	}

	if _, err := s.pool.Exec(ctx, q, args...); err != nil {
		return fmt.Errorf("journal store: record: %w", err)
	}
	return nil
}

// Get implements [journal.Recorder].
func (s *Store) Get(ctx context.Context, id uuid.UUID) (journal.Entry, error) {
	q := `SELECT ` + entryColumns + ` FROM journal_entries WHERE id = $1`

	entry, err := scanEntry(s.pool.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return journal.Entry{}, journal.ErrNotFound
	}
	if err != nil {
		return journal.Entry{}, fmt.Errorf("journal store: get: %w", err)
	}
	return entry, nil
}

// Recent implements [journal.Recorder].
func (s *Store) Recent(ctx context.Context, limit int) ([]journal.Entry, error) {
	q := `SELECT ` + entryColumns + `
		FROM journal_entries ORDER BY created_at DESC LIMIT $1`

	rows, err := s.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("journal store: recent: %w", err)
	}
	return collectEntries(rows)
}

// Search implements [journal.Recorder]. The query is passed to
// plainto_tsquery so no special operator syntax is required.
func (s *Store) Search(ctx context.Context, query string, limit int) ([]journal.Entry, error) {
	q := `SELECT ` + entryColumns + `
		FROM   journal_entries
		WHERE  to_tsvector('simple', transcript) @@ plainto_tsquery('simple', $1)
		ORDER  BY created_at DESC
		LIMIT  $2`

	rows, err := s.pool.Query(ctx, q, query, limit)
	if err != nil {
		return nil, fmt.Errorf("journal store: search: %w", err)
	}
	return collectEntries(rows)
}

// ---- row plumbing -------------------------------------------------------

// jsonArg encodes v as a JSONB parameter. Nil pointers and empty slices
// become SQL NULL so absent analyses stay distinguishable from empty ones.
func jsonArg(v any) (any, error) {
	switch t := v.(type) {
	case *analysis.Signal:
		if t == nil {
			return nil, nil
		}
	case *analysis.Point:
		if t == nil {
			return nil, nil
		}
	case *analysis.GFK:
		if t == nil {
			return nil, nil
		}
	case *analysis.FourSides:
		if t == nil {
			return nil, nil
		}
	case *analysis.Topic:
		if t == nil {
			return nil, nil
		}
	case []analysis.Fallacy:
		if t == nil {
			return nil, nil
		}
	case []analysis.Distortion:
		if t == nil {
			return nil, nil
		}
	case map[string]journal.FeatureStatus:
		if t == nil {
			return []byte(`{}`), nil
		}
	}
	return json.Marshal(v)
}

// scanEntry reads one journal row. The JSONB columns arrive as []byte and
// are decoded into their analysis types; NULL stays nil.
func scanEntry(row pgx.Row) (journal.Entry, error) {
	var (
		entry              journal.Entry
		speechNs, totalNs  int64
		emotion, point     []byte
		tone, fallacies    []byte
		gfk, distortions   []byte
		fourSides, topic   []byte
		status             []byte
	)

	err := row.Scan(
		&entry.ID, &entry.CreatedAt, &entry.Transcript, &speechNs, &totalNs,
		&entry.Provider, &emotion, &point, &tone, &fallacies, &gfk,
		&distortions, &fourSides, &topic, &status,
	)
	if err != nil {
		return journal.Entry{}, err
	}

	entry.Speech = time.Duration(speechNs)
	entry.Total = time.Duration(totalNs)

	for _, col := range []struct {
		raw  []byte
		dest any
	}{
		{emotion, &entry.Emotion},
		{point, &entry.EmotionPoint},
		{tone, &entry.Tone},
		{fallacies, &entry.Fallacies},
		{gfk, &entry.GFK},
		{distortions, &entry.Distortions},
		{fourSides, &entry.FourSides},
		{topic, &entry.Topic},
		{status, &entry.Status},
	} {
		if len(col.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(col.raw, col.dest); err != nil {
			return journal.Entry{}, fmt.Errorf("decode column: %w", err)
		}
	}

	return entry, nil
}

// collectEntries drains rows into a slice, propagating the first error.
func collectEntries(rows pgx.Rows) ([]journal.Entry, error) {
	defer rows.Close()

	var entries []journal.Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("journal store: scan: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal store: rows: %w", err)
	}
	return entries, nil
}
