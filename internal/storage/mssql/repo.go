package mssql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"csvsniff/internal/storage"
)

// Repo implements storage.Repository for Microsoft SQL Server.
//
// Note on driver registration:
//   - This package does NOT blank-import a SQL Server driver. The binary
//     registers "sqlserver" (cmd/sniff imports github.com/microsoft/go-mssqldb).
type Repo struct {
	db    dbConn
	table string
}

func init() {
	storage.Register("mssql", New)
}

// New opens cfg.DSN with the "sqlserver" driver and validates connectivity
// via PingContext.
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	raw, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, err
	}

	// One report per run; a handful of connections is plenty.
	raw.SetMaxOpenConns(4)
	raw.SetMaxIdleConns(4)

	if err := raw.PingContext(ctx); err != nil {
		_ = raw.Close()
		return nil, err
	}
	return &Repo{db: &sqlDB{db: raw}, table: cfg.TableName()}, nil
}

// Close releases database resources held by this repository.
func (r *Repo) Close() {
	if r == nil || r.db == nil {
		return
	}
	_ = r.db.Close()
}

func (r *Repo) EnsureSchema(ctx context.Context) error {
	for _, stmt := range buildSchemaSQL(r.table) {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("mssql: create table %s: %w", r.table, err)
		}
	}
	return nil
}

func (r *Repo) Save(ctx context.Context, rec storage.Record) error {
	_, err := r.db.ExecContext(ctx, buildInsertSQL(r.table),
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
		return fmt.Errorf("mssql: insert into %s: %w", r.table, err)
	}
	return nil
}

func (r *Repo) Latest(ctx context.Context, fingerprint string) (storage.Record, error) {
	rec, err := scanRecord(r.db.QueryRowContext(ctx, buildLatestSQL(r.table), fingerprint))
	if errors.Is(err, sql.ErrNoRows) {
		return storage.Record{}, storage.ErrNotFound
	}
	return rec, err
}

func (r *Repo) List(ctx context.Context, source string, limit int) ([]storage.Record, error) {
	q, args := buildListSQL(r.table, source, limit)
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("mssql: list %s: %w", r.table, err)
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

func scanRecord(s rowScanner) (storage.Record, error) {
	var (
		rec        storage.Record
		id, report string
	)
	err := s.Scan(&id, &rec.Source, &rec.Fingerprint, &rec.CreatedAt,
		&rec.Delimiter, &rec.NumFields, &rec.NumRecords, &report)
	if err != nil {
		return storage.Record{}, err
	}
	if rec.ID, err = uuid.Parse(id); err != nil {
		return storage.Record{}, fmt.Errorf("mssql: parse id %q: %w", id, err)
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.Report = []byte(report)
	return rec, nil
}

// UNIQUEIDENTIFIER scans as mixed-endian bytes; select it as text instead.
const selectColumns = `CONVERT(NVARCHAR(36), id), source, fingerprint, created_at, delimiter, num_fields, num_records, report`

// buildSchemaSQL returns the guarded table DDL and index DDL.
func buildSchemaSQL(table string) []string {
	idx := indexName(table)
	return []string{
		fmt.Sprintf(
			"IF OBJECT_ID(N'%s', N'U') IS NULL BEGIN CREATE TABLE %s (%s); END;",
			escapeLiteral(table),
			mssqlTableIdent(table),
			strings.Join([]string{
				"[id] UNIQUEIDENTIFIER NOT NULL PRIMARY KEY",
				"[source] NVARCHAR(1024) NOT NULL",
				"[fingerprint] NVARCHAR(64) NOT NULL",
				"[created_at] DATETIME2(7) NOT NULL",
				"[delimiter] NVARCHAR(8) NOT NULL",
				"[num_fields] INT NOT NULL",
				"[num_records] BIGINT NOT NULL",
				"[report] NVARCHAR(MAX) NOT NULL",
			}, ", "),
		),
		fmt.Sprintf(
			"IF NOT EXISTS (SELECT 1 FROM sys.indexes WHERE name = N'%s' AND object_id = OBJECT_ID(N'%s')) "+
				"CREATE INDEX %s ON %s ([fingerprint], [created_at] DESC);",
			escapeLiteral(idx), escapeLiteral(table), mssqlIdent(idx), mssqlTableIdent(table),
		),
	}
}

func buildInsertSQL(table string) string {
	return fmt.Sprintf(
		"INSERT INTO %s ([id], [source], [fingerprint], [created_at], [delimiter], [num_fields], [num_records], [report]) "+
			"VALUES (@p1, @p2, @p3, @p4, @p5, @p6, @p7, @p8);",
		mssqlTableIdent(table),
	)
}

func buildLatestSQL(table string) string {
	return fmt.Sprintf(
		"SELECT TOP (1) %s FROM %s WHERE [fingerprint] = @p1 ORDER BY [created_at] DESC, [id] DESC;",
		selectColumns, mssqlTableIdent(table),
	)
}

// buildListSQL numbers placeholders in the order args are appended.
func buildListSQL(table, source string, limit int) (string, []any) {
	var (
		args  []any
		top   string
		where string
	)
	if limit > 0 {
		args = append(args, limit)
		top = fmt.Sprintf("TOP (@p%d) ", len(args))
	}
	if source != "" {
		args = append(args, source)
		where = fmt.Sprintf(" WHERE [source] = @p%d", len(args))
	}
	q := fmt.Sprintf("SELECT %s%s FROM %s%s ORDER BY [created_at] DESC, [id] DESC;",
		top, selectColumns, mssqlTableIdent(table), where)
	return q, args
}

func indexName(table string) string {
	parts := strings.Split(table, ".")
	return strings.TrimSpace(parts[len(parts)-1]) + "_fingerprint_idx"
}

func escapeLiteral(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

func mssqlIdent(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

// mssqlTableIdent returns a bracket-quoted identifier for schema-qualified names.
//
// Example:
//
//	"dbo.sniff_reports" -> [dbo].[sniff_reports]
func mssqlTableIdent(name string) string {
	parts := strings.Split(name, ".")
	for i := range parts {
		parts[i] = mssqlIdent(strings.TrimSpace(parts[i]))
	}
	return strings.Join(parts, ".")
}

// dbConn is the slice of *sql.DB the repository needs; tests substitute it.
type dbConn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) rowScanner
	Close() error
}

// rowScanner is a narrow adapter over *sql.Row.Scan.
type rowScanner interface {
	Scan(dest ...any) error
}

// sqlDB wraps *sql.DB to implement dbConn.
type sqlDB struct {
	db *sql.DB
}

func (s *sqlDB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, query, args...)
}

func (s *sqlDB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, query, args...)
}

func (s *sqlDB) QueryRowContext(ctx context.Context, query string, args ...any) rowScanner {
	return s.db.QueryRowContext(ctx, query, args...)
}

func (s *sqlDB) Close() error { return s.db.Close() }

var _ dbConn = (*sqlDB)(nil)
