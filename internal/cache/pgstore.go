package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/hverberg/echotype/internal/transcript"
)

// Schema is the SQL DDL for the reference_transcripts table. Execute it via
// [PostgresStore.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS reference_transcripts (
    clip_id    TEXT PRIMARY KEY,
    segments   JSONB NOT NULL DEFAULT '[]',
    fetched_at TIMESTAMPTZ NOT NULL
);
`

// DB is the database interface used by [PostgresStore]. Both *pgxpool.Pool
// and *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore is a [Store] backed by a PostgreSQL database. Segments are
// serialised as a JSONB array in fetch order.
type PostgresStore struct {
	db DB
}

// Compile-time interface check.
var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a [PostgresStore] that uses the given connection
// or pool. The caller is responsible for calling [PostgresStore.Migrate]
// before issuing queries.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate executes the [Schema] DDL, creating the reference_transcripts
// table if it does not already exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("cache: migrate: %w", err)
	}
	return nil
}

// Load implements [Store.Load].
func (s *PostgresStore) Load(ctx context.Context, id transcript.ClipID) (*transcript.ReferenceTranscript, error) {
	var (
		segJSON   []byte
		fetchedAt time.Time
	)
	err := s.db.QueryRow(ctx,
		`SELECT segments, fetched_at FROM reference_transcripts WHERE clip_id = $1`,
		string(id),
	).Scan(&segJSON, &fetchedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotPersisted
	}
	if err != nil {
		return nil, fmt.Errorf("cache: load %q: %w", id, err)
	}

	var segments []transcript.TimedSegment
	if err := json.Unmarshal(segJSON, &segments); err != nil {
		return nil, fmt.Errorf("cache: unmarshal segments for %q: %w", id, err)
	}

	return &transcript.ReferenceTranscript{
		ClipID:    id,
		Segments:  segments,
		FetchedAt: fetchedAt,
	}, nil
}

// Save implements [Store.Save].
func (s *PostgresStore) Save(ctx context.Context, ref *transcript.ReferenceTranscript) error {
	segJSON, err := json.Marshal(ref.Segments)
	if err != nil {
		return fmt.Errorf("cache: marshal segments for %q: %w", ref.ClipID, err)
	}

	_, err = s.db.Exec(ctx, `
INSERT INTO reference_transcripts (clip_id, segments, fetched_at)
VALUES ($1, $2, $3)
ON CONFLICT (clip_id) DO UPDATE
SET segments = EXCLUDED.segments, fetched_at = EXCLUDED.fetched_at`,
		string(ref.ClipID), segJSON, ref.FetchedAt,
	)
	if err != nil {
		return fmt.Errorf("cache: save %q: %w", ref.ClipID, err)
	}
	return nil
}

// Delete implements [Store.Delete].
func (s *PostgresStore) Delete(ctx context.Context, id transcript.ClipID) error {
	if _, err := s.db.Exec(ctx,
		`DELETE FROM reference_transcripts WHERE clip_id = $1`, string(id),
	); err != nil {
		return fmt.Errorf("cache: delete %q: %w", id, err)
	}
	return nil
}
