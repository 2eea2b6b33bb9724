package userstore

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned when no document exists for a username.
var ErrNotFound = errors.New("user not found")

// Store is the persistence interface for user documents. Writes are
// last-writer-wins; reads observe the last committed write in-process.
// Implementations: FileStore (YAML files, default), SQLiteStore
// (single-file database), MemoryStore (tests).
type Store interface {
	Get(ctx context.Context, username string) (*UserConfig, error)
	Save(ctx context.Context, cfg *UserConfig) error
	Delete(ctx context.Context, username string) error
	List(ctx context.Context) ([]string, error)
	Close() error
}

// Open creates a store for the configured backend.
func Open(backend, dataDir string) (Store, error) {
	switch backend {
	case "", "file":
		return NewFileStore(dataDir)
	case "sqlite":
		return NewSQLiteStore(dataDir)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown user store backend %q", backend)
	}
}
