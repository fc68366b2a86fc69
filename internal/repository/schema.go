package repository

import (
	"context"
	"fmt"

	"neonmatch-backend/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const realtimePublication = "supabase_realtime"

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS public.users (
		id         BIGSERIAL PRIMARY KEY,
		name       TEXT NOT NULL,
		bio        TEXT NOT NULL DEFAULT '',
		photo_url  TEXT,
		joined_at  BIGINT NOT NULL DEFAULT (EXTRACT(EPOCH FROM now()) * 1000)::BIGINT
	)`,
	`CREATE TABLE IF NOT EXISTS public.matches (
		from_id    BIGINT NOT NULL REFERENCES public.users(id) ON DELETE CASCADE,
		to_id      BIGINT NOT NULL REFERENCES public.users(id) ON DELETE CASCADE,
		status     TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'accepted', 'rejected')),
		timestamp  BIGINT NOT NULL DEFAULT (EXTRACT(EPOCH FROM now()) * 1000)::BIGINT,
		CHECK (from_id <> to_id)
	)`,
	// one request per pair is checked by the app; simultaneous mutual likes both land
	`DROP INDEX IF EXISTS public.matches_pair_idx`,
	`CREATE INDEX IF NOT EXISTS matches_from_to_idx ON public.matches (from_id, to_id)`,
	`CREATE TABLE IF NOT EXISTS public.messages (
		id              BIGSERIAL PRIMARY KEY,
		sender_id       BIGINT NOT NULL REFERENCES public.users(id) ON DELETE CASCADE,
		receiver_id     BIGINT NOT NULL REFERENCES public.users(id) ON DELETE CASCADE,
		text            TEXT NOT NULL DEFAULT '',
		type            TEXT NOT NULL DEFAULT 'text' CHECK (type IN ('text', 'image', 'dedication')),
		attachment_url  TEXT,
		timestamp       BIGINT NOT NULL DEFAULT (EXTRACT(EPOCH FROM now()) * 1000)::BIGINT
	)`,
	`CREATE INDEX IF NOT EXISTS messages_timestamp_idx ON public.messages (timestamp)`,
}

// DB is the subset of pgxpool.Pool the repository uses
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

var _ DB = (*pgxpool.Pool)(nil)

// SchemaRepository manages the tables behind the app over a direct Postgres
// connection
type SchemaRepository struct {
	db DB
}

// NewSchemaRepository creates a new schema repository
func NewSchemaRepository(db DB) *SchemaRepository {
	return &SchemaRepository{db: db}
}

// Counts holds row counts per table
type Counts struct {
	Users    int64 `json:"users"`
	Matches  int64 `json:"matches"`
	Messages int64 `json:"messages"`
}

// EnsureSchema creates the tables, the chat image bucket and the realtime
// publication entries if they are missing
func (r *SchemaRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, stmt := range schemaStatements {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}

	if err := ensureBucket(ctx, tx, models.ChatBucket); err != nil {
		return err
	}

	for _, table := range []string{models.UsersTable, models.MatchesTable, models.MessagesTable} {
		if err := ensurePublished(ctx, tx, table); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit schema: %w", err)
	}
	return nil
}

// ensureBucket creates a public storage bucket when the storage schema exists
func ensureBucket(ctx context.Context, tx pgx.Tx, bucket string) error {
	var hasStorage bool
	err := tx.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM information_schema.tables WHERE table_schema = 'storage' AND table_name = 'buckets')`,
	).Scan(&hasStorage)
	if err != nil {
		return fmt.Errorf("failed to check storage schema: %w", err)
	}
	if !hasStorage {
		return nil
	}

	query := `
		INSERT INTO storage.buckets (id, name, public)
		VALUES ($1, $1, true)
		ON CONFLICT (id) DO NOTHING
	`
	if _, err := tx.Exec(ctx, query, bucket); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
	}
	return nil
}

// ensurePublished adds table to the realtime publication when it exists
func ensurePublished(ctx context.Context, tx pgx.Tx, table string) error {
	query := `
		SELECT
			EXISTS(SELECT 1 FROM pg_publication WHERE pubname = $1),
			EXISTS(SELECT 1 FROM pg_publication_tables WHERE pubname = $1 AND schemaname = 'public' AND tablename = $2)
	`
	var hasPublication, published bool
	if err := tx.QueryRow(ctx, query, realtimePublication, table).Scan(&hasPublication, &published); err != nil {
		return fmt.Errorf("failed to check publication for %s: %w", table, err)
	}
	if !hasPublication || published {
		return nil
	}

	stmt := fmt.Sprintf("ALTER PUBLICATION %s ADD TABLE %s",
		pgx.Identifier{realtimePublication}.Sanitize(),
		pgx.Identifier{"public", table}.Sanitize(),
	)
	if _, err := tx.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("failed to publish %s: %w", table, err)
	}
	return nil
}

// Reset deletes every row and restarts user numbering at 1
func (r *SchemaRepository) Reset(ctx context.Context) error {
	query := `TRUNCATE public.messages, public.matches, public.users RESTART IDENTITY CASCADE`
	if _, err := r.db.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to reset tables: %w", err)
	}
	return nil
}

// Counts returns the number of rows per table
func (r *SchemaRepository) Counts(ctx context.Context) (*Counts, error) {
	query := `
		SELECT
			(SELECT count(*) FROM public.users),
			(SELECT count(*) FROM public.matches),
			(SELECT count(*) FROM public.messages)
	`
	var c Counts
	if err := r.db.QueryRow(ctx, query).Scan(&c.Users, &c.Matches, &c.Messages); err != nil {
		return nil, fmt.Errorf("failed to count rows: %w", err)
	}
	return &c, nil
}
