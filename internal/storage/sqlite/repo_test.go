package sqlite

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"csvsniff/internal/storage"
)

func openTemp(t *testing.T) storage.Repository {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "reports.db")
	repo, err := storage.New(context.Background(), storage.Config{Kind: "sqlite", DSN: dsn})
	if err != nil {
		t.Fatalf("storage.New: %v", err)
	}
	t.Cleanup(repo.Close)
	if err := repo.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	return repo
}

func record(source, fp string, at time.Time) storage.Record {
	return storage.Record{
		ID:          uuid.New(),
		Source:      source,
		Fingerprint: fp,
		CreatedAt:   at,
		Delimiter:   ",",
		NumFields:   3,
		NumRecords:  10,
		Report:      []byte(`{"source":"` + source + `"}`),
	}
}

func TestRepoRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := openTemp(t)

	// EnsureSchema is idempotent.
	if err := repo.EnsureSchema(ctx); err != nil {
		t.Fatalf("second EnsureSchema: %v", err)
	}

	base := time.Date(2026, 1, 27, 12, 17, 8, 0, time.UTC)
	older := record("a.csv", "fp1", base)
	newer := record("a.csv", "fp1", base.Add(1500*time.Millisecond))
	other := record("b.csv", "fp2", base.Add(time.Second))
	for _, rec := range []storage.Record{older, newer, other} {
		if err := repo.Save(ctx, rec); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}

	got, err := repo.Latest(ctx, "fp1")
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if got.ID != newer.ID || !got.CreatedAt.Equal(newer.CreatedAt) {
		t.Fatalf("Latest = %v at %v, want %v at %v", got.ID, got.CreatedAt, newer.ID, newer.CreatedAt)
	}
	if string(got.Report) != string(newer.Report) || got.NumFields != 3 || got.NumRecords != 10 || got.Delimiter != "," {
		t.Fatalf("Latest columns = %+v", got)
	}

	if _, err := repo.Latest(ctx, "missing"); err != storage.ErrNotFound {
		t.Fatalf("Latest(missing) err = %v", err)
	}

	all, err := repo.List(ctx, "", 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 3 || all[0].ID != newer.ID || all[1].ID != other.ID || all[2].ID != older.ID {
		t.Fatalf("List order wrong: %v", all)
	}

	onlyA, err := repo.List(ctx, "a.csv", 1)
	if err != nil {
		t.Fatalf("List(a.csv): %v", err)
	}
	if len(onlyA) != 1 || onlyA[0].ID != newer.ID {
		t.Fatalf("List(a.csv, 1) = %v", onlyA)
	}
}

func TestSaveDuplicateID(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := openTemp(t)

	rec := record("a.csv", "fp", time.Now())
	if err := repo.Save(ctx, rec); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := repo.Save(ctx, rec); err == nil {
		t.Fatalf("expected primary key violation")
	}
}

func TestMemoryDSN(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	repo, err := New(ctx, storage.Config{DSN: ":memory:"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer repo.Close()
	if err := repo.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	if err := repo.Save(ctx, record("m.csv", "fp", time.Now())); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := repo.Latest(ctx, "fp"); err != nil {
		t.Fatalf("Latest: %v", err)
	}
}

func TestBuildSQL(t *testing.T) {
	t.Parallel()

	ddl := buildSchemaSQL(`we"ird`)
	if len(ddl) != 2 || !strings.Contains(ddl[0], `CREATE TABLE IF NOT EXISTS "we""ird"`) {
		t.Fatalf("schema DDL = %v", ddl)
	}
	if !strings.Contains(ddl[1], `"we""ird_fingerprint_idx"`) {
		t.Fatalf("index DDL = %s", ddl[1])
	}

	tests := []struct {
		name     string
		source   string
		limit    int
		wantSQL  string
		wantArgs int
	}{
		{name: "all", wantSQL: `FROM "t" ORDER BY created_at DESC, id DESC`, wantArgs: 0},
		{name: "source", source: "a", wantSQL: `WHERE source = ? ORDER BY`, wantArgs: 1},
		{name: "limit", limit: 5, wantSQL: `DESC LIMIT ?`, wantArgs: 1},
		{name: "both", source: "a", limit: 5, wantSQL: `WHERE source = ? ORDER BY created_at DESC, id DESC LIMIT ?`, wantArgs: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, args := buildListSQL("t", tt.source, tt.limit)
			if !strings.Contains(q, tt.wantSQL) || len(args) != tt.wantArgs {
				t.Fatalf("buildListSQL = %q %v", q, args)
			}
		})
	}
}

func TestSQLiteTime(t *testing.T) {
	t.Parallel()

	a := time.Date(2026, 1, 27, 12, 17, 8, 0, time.UTC)
	b := a.Add(100 * time.Millisecond)
	if fa, fb := formatSQLiteTime(a), formatSQLiteTime(b); fa >= fb {
		t.Fatalf("formatted times do not sort: %q >= %q", fa, fb)
	}

	tests := []struct {
		in      string
		wantErr bool
	}{
		{in: "2026-01-27T12:17:08.000000000Z"},
		{in: "2026-01-27T12:17:08Z"},
		{in: "2026-01-27 12:17:08+00:00"},
		{in: "2026-01-27 12:17:08.000000000+00:00"},
		{in: "2026-01-27 12:17:08"},
		{in: "not-a-time", wantErr: true},
		{in: " ", wantErr: true},
	}
	for _, tt := range tests {
		got, err := parseSQLiteTime(tt.in)
		if (err != nil) != tt.wantErr {
			t.Fatalf("parseSQLiteTime(%q) err=%v wantErr=%v", tt.in, err, tt.wantErr)
		}
		if !tt.wantErr && !got.Equal(a) {
			t.Fatalf("parseSQLiteTime(%q) = %v, want %v", tt.in, got, a)
		}
	}
}
