package repository

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *bool:
			*p = r.values[i].(bool)
		case *int64:
			*p = r.values[i].(int64)
		}
	}
	return nil
}

// fakeDB records statements; it answers every boolean query with rows
type fakeDB struct {
	pgx.Tx // unused methods panic

	execs     []string
	execErr   error
	boolRow   []any
	countRow  []any
	committed bool
}

func (f *fakeDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.execs = append(f.execs, sql)
	return pgconn.CommandTag{}, f.execErr
}

func (f *fakeDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if strings.Contains(sql, "count(*)") {
		return fakeRow{values: f.countRow}
	}
	if strings.Contains(sql, "pg_publication") {
		return fakeRow{values: f.boolRow}
	}
	return fakeRow{values: []any{true}}
}

func (f *fakeDB) Begin(ctx context.Context) (pgx.Tx, error) { return f, nil }

func (f *fakeDB) Commit(ctx context.Context) error {
	f.committed = true
	return nil
}

func (f *fakeDB) Rollback(ctx context.Context) error { return nil }

func TestEnsureSchema(t *testing.T) {
	db := &fakeDB{boolRow: []any{true, false}}
	if err := NewSchemaRepository(db).EnsureSchema(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !db.committed {
		t.Fatal("schema not committed")
	}

	joined := strings.Join(db.execs, "\n")
	for _, want := range []string{
		"CREATE TABLE IF NOT EXISTS public.users",
		"CREATE TABLE IF NOT EXISTS public.matches",
		"CREATE TABLE IF NOT EXISTS public.messages",
		"INSERT INTO storage.buckets",
		`ALTER PUBLICATION "supabase_realtime" ADD TABLE "public"."messages"`,
	} {
		if !strings.Contains(joined, want) {
			t.Errorf("missing statement %q", want)
		}
	}
}

func TestEnsureSchemaSkipsPublishedTables(t *testing.T) {
	db := &fakeDB{boolRow: []any{true, true}}
	if err := NewSchemaRepository(db).EnsureSchema(context.Background()); err != nil {
		t.Fatal(err)
	}
	for _, s := range db.execs {
		if strings.Contains(s, "ALTER PUBLICATION") {
			t.Fatalf("already published table altered: %s", s)
		}
	}
}

func TestEnsureSchemaError(t *testing.T) {
	db := &fakeDB{execErr: errors.New("permission denied")}
	if err := NewSchemaRepository(db).EnsureSchema(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if db.committed {
		t.Fatal("failed schema was committed")
	}
}

func TestResetAndCounts(t *testing.T) {
	db := &fakeDB{countRow: []any{int64(3), int64(2), int64(9)}}
	repo := NewSchemaRepository(db)

	if err := repo.Reset(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(db.execs) != 1 || !strings.Contains(db.execs[0], "RESTART IDENTITY") {
		t.Fatalf("execs = %v", db.execs)
	}

	c, err := repo.Counts(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if c.Users != 3 || c.Matches != 2 || c.Messages != 9 {
		t.Fatalf("counts = %+v", c)
	}
}

func TestEnsureSchemaLeavesPairsUnconstrained(t *testing.T) {
	db := &fakeDB{boolRow: []any{true, false}}
	if err := NewSchemaRepository(db).EnsureSchema(context.Background()); err != nil {
		t.Fatal(err)
	}
	for _, s := range db.execs {
		if strings.Contains(s, "UNIQUE") || (strings.Contains(s, "public.matches (") && strings.Contains(s, "PRIMARY KEY")) {
			t.Fatalf("pair uniqueness enforced by the database: %s", s)
		}
	}
}
