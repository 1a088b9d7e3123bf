package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"csvsniff/internal/storage"
)

// Repo implements storage.Repository for SQLite.
//
// SQLite has no timestamp type, so created_at is stored as fixed-width
// RFC3339 text in UTC. Fixed width keeps ORDER BY created_at chronological.
type Repo struct {
	db    *sql.DB
	table string
}

func init() {
	storage.Register("sqlite", New)
}

// New opens the database at cfg.DSN and checks it with a ping.
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, err
	}
	// One writer; also keeps ":memory:" databases on a single connection.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repo{db: db, table: cfg.TableName()}, nil
}

func (r *Repo) Close() { _ = r.db.Close() }

func (r *Repo) EnsureSchema(ctx context.Context) error {
	for _, stmt := range buildSchemaSQL(r.table) {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create table %s: %w", r.table, err)
		}
	}
	return nil
}

func (r *Repo) Save(ctx context.Context, rec storage.Record) error {
	_, err := r.db.ExecContext(ctx, buildInsertSQL(r.table),
		rec.ID.String(),
		rec.Source,
		rec.Fingerprint,
		formatSQLiteTime(rec.CreatedAt),
		rec.Delimiter,
		rec.NumFields,
		rec.NumRecords,
		string(rec.Report),
	)
	if err != nil {
		return fmt.Errorf("insert into %s: %w", r.table, err)
	}
	return nil
}

func (r *Repo) Latest(ctx context.Context, fingerprint string) (storage.Record, error) {
	row := r.db.QueryRowContext(ctx, buildLatestSQL(r.table), fingerprint)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.Record{}, storage.ErrNotFound
	}
	return rec, err
}

func (r *Repo) List(ctx context.Context, source string, limit int) ([]storage.Record, error) {
	q, args := buildListSQL(r.table, source, limit)
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", r.table, err)
	}
	defer rows.Close()

	var out []storage.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (storage.Record, error) {
	var (
		rec         storage.Record
		id, created string
		report      string
	)
	err := s.Scan(&id, &rec.Source, &rec.Fingerprint, &created,
		&rec.Delimiter, &rec.NumFields, &rec.NumRecords, &report)
	if err != nil {
		return storage.Record{}, err
	}
	if rec.ID, err = uuid.Parse(id); err != nil {
		return storage.Record{}, fmt.Errorf("parse id %q: %w", id, err)
	}
	if rec.CreatedAt, err = parseSQLiteTime(created); err != nil {
		return storage.Record{}, err
	}
	rec.Report = []byte(report)
	return rec, nil
}

const recordColumns = `id, source, fingerprint, created_at, delimiter, num_fields, num_records, report`

func sqlIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

// buildSchemaSQL returns the table DDL and the fingerprint index DDL.
func buildSchemaSQL(table string) []string {
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
  id TEXT PRIMARY KEY,
  source TEXT NOT NULL,
  fingerprint TEXT NOT NULL,
  created_at TEXT NOT NULL,
  delimiter TEXT NOT NULL,
  num_fields INTEGER NOT NULL,
  num_records INTEGER NOT NULL,
  report TEXT NOT NULL
)`, sqlIdent(table)),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (fingerprint, created_at)`,
			sqlIdent(table+"_fingerprint_idx"), sqlIdent(table)),
	}
}

func buildInsertSQL(table string) string {
	return fmt.Sprintf(`INSERT INTO %s (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, sqlIdent(table), recordColumns)
}

func buildLatestSQL(table string) string {
	return fmt.Sprintf(`SELECT %s FROM %s WHERE fingerprint = ? ORDER BY created_at DESC, id DESC LIMIT 1`,
		recordColumns, sqlIdent(table))
}

func buildListSQL(table, source string, limit int) (string, []any) {
	var (
		b    strings.Builder
		args []any
	)
	fmt.Fprintf(&b, `SELECT %s FROM %s`, recordColumns, sqlIdent(table))
	if source != "" {
		b.WriteString(` WHERE source = ?`)
		args = append(args, source)
	}
	b.WriteString(` ORDER BY created_at DESC, id DESC`)
	if limit > 0 {
		b.WriteString(` LIMIT ?`)
		args = append(args, limit)
	}
	return b.String(), args
}

const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// formatSQLiteTime formats t in UTC with a fixed nine-digit fraction.
func formatSQLiteTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

// parseSQLiteTime parses timestamps returned by SQLite into time.Time.
//
// Supported formats:
//   - RFC3339 with any fraction (what we write)
//   - "2006-01-02 15:04:05Z07:00", with or without a fraction
//   - "2006-01-02 15:04:05" (interpreted as UTC)
func parseSQLiteTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty time string")
	}

	layouts := []string{
		time.RFC3339Nano,
		"2006-01-02 15:04:05.999999999Z07:00",
	}
	for _, layout := range layouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), nil
		}
	}
	if ts, err := time.ParseInLocation("2006-01-02 15:04:05", s, time.UTC); err == nil {
		return ts, nil
	}
	return time.Time{}, fmt.Errorf("unsupported time format: %q", s)
}
