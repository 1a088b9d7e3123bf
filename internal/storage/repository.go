// Package storage persists sniff reports so repeated runs over the same
// sample can be looked up instead of recomputed.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"csvsniff/internal/metadata"
)

// DefaultTable holds reports when Config.Table is empty.
const DefaultTable = "sniff_reports"

// ErrNotFound is returned by Latest when no report matches.
var ErrNotFound = errors.New("storage: report not found")

// Config is the minimal configuration needed to open a Repository.
//
// Edge cases:
//   - Kind must be non-empty and must match a registered backend kind.
//   - DSN is passed through to the backend factory; validation is backend-specific.
//   - Table may be schema-qualified on backends that support it.
type Config struct {
	Kind  string
	DSN   string
	Table string
}

// TableName returns Table, or DefaultTable when it is empty.
func (c Config) TableName() string {
	if c.Table == "" {
		return DefaultTable
	}
	return c.Table
}

// Record is one stored report.
type Record struct {
	ID          uuid.UUID
	Source      string
	Fingerprint string
	CreatedAt   time.Time
	Delimiter   string
	NumFields   int
	NumRecords  int64
	Report      json.RawMessage
}

// NewRecord stamps r with a fresh id and the current UTC time.
func NewRecord(r metadata.Report) (Record, error) {
	raw, err := json.Marshal(r)
	if err != nil {
		return Record{}, fmt.Errorf("storage: encode report: %w", err)
	}
	return Record{
		ID:          uuid.New(),
		Source:      r.Source,
		Fingerprint: r.Fingerprint,
		CreatedAt:   time.Now().UTC(),
		Delimiter:   r.Delimiter,
		NumFields:   r.NumFields,
		NumRecords:  r.NumRecords,
		Report:      raw,
	}, nil
}

// Decode returns the stored report.
func (r Record) Decode() (metadata.Report, error) {
	var out metadata.Report
	if err := json.Unmarshal(r.Report, &out); err != nil {
		return metadata.Report{}, fmt.Errorf("storage: decode report %s: %w", r.ID, err)
	}
	return out, nil
}

// Repository is a backend-agnostic report history.
type Repository interface {
	// EnsureSchema creates the report table and its index if missing.
	EnsureSchema(ctx context.Context) error

	// Save inserts rec. Records are never updated.
	Save(ctx context.Context, rec Record) error

	// Latest returns the newest record with the given fingerprint, or
	// ErrNotFound.
	Latest(ctx context.Context, fingerprint string) (Record, error)

	// List returns up to limit records for source, newest first. An empty
	// source lists every source; limit <= 0 means no limit.
	List(ctx context.Context, source string, limit int) ([]Record, error)

	// Close releases backend resources. Call once.
	Close()
}

// Factory opens a Repository for cfg.
type Factory func(ctx context.Context, cfg Config) (Repository, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register makes a backend available under kind (e.g. "postgres", "sqlite").
// Backend packages call it from init.
//
// Panics:
//   - If kind is empty.
//   - If f is nil.
//   - If kind is already registered.
func Register(kind string, f Factory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("storage: Register called with empty kind")
	}
	if f == nil {
		panic("storage: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("storage: factory already registered for kind=%q", kind))
	}

	factories[kind] = f
}

// New opens a Repository using the registered backend factory.
//
// Errors:
//   - Returns an error if cfg.Kind is empty or unsupported.
//   - Returns whatever error the registered factory returns.
func New(ctx context.Context, cfg Config) (Repository, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("storage: missing kind")
	}

	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("unsupported storage.kind=%s (have %v)", cfg.Kind, Kinds())
	}
	return f(ctx, cfg)
}

// Kinds lists the registered backend kinds, sorted.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()

	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
