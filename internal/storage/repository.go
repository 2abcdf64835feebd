package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Config is the minimal configuration needed to open a Repository.
//
// Edge cases:
//   - Kind must be non-empty and must match a registered backend kind.
//   - DSN is passed through to the backend factory; validation is backend-specific.
type Config struct {
	Kind string
	DSN  string
}

// Repository is a backend-agnostic handle on the destination database.
//
// A Repository is opened at the start of a load and closed on every exit
// path; it is never shared between runs. All writes go through a Tx so a
// failed load leaves previously persisted state untouched.
type Repository interface {
	// Close releases backend resources (pools, handles). Call once.
	Close()

	// Begin starts the transaction a whole load runs in.
	Begin(ctx context.Context) (Tx, error)
}

// Tx is one load transaction. Each backend implements these semantics in its
// own dialect (Postgres ON CONFLICT, SQLite OR IGNORE, SQL Server MERGE).
type Tx interface {
	// TableColumns lists existing column names in ordinal order, or nil when
	// the table does not exist.
	TableColumns(ctx context.Context, table string) ([]string, error)

	// DropTable drops the table if it exists.
	DropTable(ctx context.Context, table string) error

	// CreateTable creates the table if it does not exist. spec.Key, when set,
	// becomes the primary key.
	CreateTable(ctx context.Context, spec TableSpec) error

	// AddColumns appends nullable columns to an existing table.
	AddColumns(ctx context.Context, table string, cols []ColumnSpec) error

	// InsertRows inserts rows and returns the number of rows written. With a
	// key column, policy decides what happens to rows whose key already exists.
	InsertRows(ctx context.Context, table string, columns []string, rows [][]any, key string, policy ConflictPolicy) (int64, error)

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// ---- factories ----

type Factory func(ctx context.Context, cfg Config) (Repository, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register registers a backend under a kind (e.g. "postgres", "sqlite").
//
// Call Register from an init() function in a backend package.
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

// Kinds lists registered backend kinds, sorted.
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

// New opens a Repository using the registered backend factory.
//
// Errors:
//   - Returns an error if cfg.Kind is empty or unsupported.
//   - Returns whatever error the registered factory returns.
func New(ctx context.Context, cfg Config) (Repository, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("storage: missing Kind")
	}

	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("storage: unsupported storage.kind=%s (registered: %v)", cfg.Kind, Kinds())
	}
	return f(ctx, cfg)
}
