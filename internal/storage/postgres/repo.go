package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"csvsniff/internal/storage"
)

// Repo implements storage.Repository for Postgres. Reports are stored as
// JSONB so they can be queried in place.
type Repo struct {
	pool  *pgxpool.Pool
	table string
}

// New creates a pool for cfg.DSN and pings the server.
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Repo{pool: pool, table: cfg.TableName()}, nil
}

// Close closes the connection pool.
func (r *Repo) Close() {
	r.pool.Close()
}

func (r *Repo) EnsureSchema(ctx context.Context) error {
	for _, stmt := range buildSchemaSQL(r.table) {
		if _, err := r.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("create table %s: %w", r.table, err)
		}
	}
	return nil
}

func (r *Repo) Save(ctx context.Context, rec storage.Record) error {
	_, err := r.pool.Exec(ctx, buildInsertSQL(r.table),
		rec.ID.String(),
		rec.Source,
		rec.Fingerprint,
		rec.CreatedAt.UTC(),
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
	rec, err := scanRecord(r.pool.QueryRow(ctx, buildLatestSQL(r.table), fingerprint))
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.Record{}, storage.ErrNotFound
	}
	return rec, err
}

func (r *Repo) List(ctx context.Context, source string, limit int) ([]storage.Record, error) {
	q, args := buildListSQL(r.table, source, limit)
	rows, err := r.pool.Query(ctx, q, args...)
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

func scanRecord(row pgx.Row) (storage.Record, error) {
	var (
		rec        storage.Record
		id, report string
	)
	err := row.Scan(&id, &rec.Source, &rec.Fingerprint, &rec.CreatedAt,
		&rec.Delimiter, &rec.NumFields, &rec.NumRecords, &report)
	if err != nil {
		return storage.Record{}, err
	}
	if rec.ID, err = uuid.Parse(id); err != nil {
		return storage.Record{}, fmt.Errorf("parse id %q: %w", id, err)
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.Report = []byte(report)
	return rec, nil
}

const selectColumns = `id::text, source, fingerprint, created_at, delimiter, num_fields, num_records, report::text`

// pgIdent quotes a possibly schema-qualified name.
//
// Example:
//
//	"public.sniff_reports" -> "public"."sniff_reports"
func pgIdent(name string) string {
	return pgx.Identifier(strings.Split(strings.TrimSpace(name), ".")).Sanitize()
}

func splitQualifiedName(name string) (schema string, table string) {
	name = strings.TrimSpace(name)
	parts := strings.Split(name, ".")
	if len(parts) != 2 {
		return "", name
	}
	return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
}

// buildSchemaSQL returns, in order: the schema DDL for qualified names, the
// table DDL and the fingerprint index DDL.
func buildSchemaSQL(table string) []string {
	var out []string
	schema, bare := splitQualifiedName(table)
	if schema != "" {
		out = append(out, fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s`, pgIdent(schema)))
	}
	out = append(out,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
  id UUID PRIMARY KEY,
  source TEXT NOT NULL,
  fingerprint TEXT NOT NULL,
  created_at TIMESTAMPTZ NOT NULL,
  delimiter TEXT NOT NULL,
  num_fields INTEGER NOT NULL,
  num_records BIGINT NOT NULL,
  report JSONB NOT NULL
)`, pgIdent(table)),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (fingerprint, created_at DESC)`,
			pgx.Identifier{bare + "_fingerprint_idx"}.Sanitize(), pgIdent(table)),
	)
	return out
}

func buildInsertSQL(table string) string {
	return fmt.Sprintf(`INSERT INTO %s (id, source, fingerprint, created_at, delimiter, num_fields, num_records, report)
VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $8::jsonb)`, pgIdent(table))
}

func buildLatestSQL(table string) string {
	return fmt.Sprintf(`SELECT %s FROM %s WHERE fingerprint = $1 ORDER BY created_at DESC, id DESC LIMIT 1`,
		selectColumns, pgIdent(table))
}

func buildListSQL(table, source string, limit int) (string, []any) {
	var (
		b    strings.Builder
		args []any
	)
	fmt.Fprintf(&b, `SELECT %s FROM %s`, selectColumns, pgIdent(table))
	if source != "" {
		args = append(args, source)
		fmt.Fprintf(&b, ` WHERE source = $%d`, len(args))
	}
	b.WriteString(` ORDER BY created_at DESC, id DESC`)
	if limit > 0 {
		args = append(args, limit)
		fmt.Fprintf(&b, ` LIMIT $%d`, len(args))
	}
	return b.String(), args
}
