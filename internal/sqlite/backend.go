// Package sqlite implements the graph storage backend on SQLite.
//
// The database lives in graph.db under the data directory and is opened in
// WAL mode with foreign keys enforced. Transactions begin IMMEDIATE, so
// write transactions are serialized by SQLite and a waiting writer blocks
// for up to the busy timeout.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/mesh-intelligence/graphctx/pkg/types"
)

// DBFile is the database file name inside the data directory.
const DBFile = "graph.db"

const dsnParams = "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_txlock=immediate"

// Backend implements types.Storage using SQLite.
type Backend struct {
	mu       sync.RWMutex
	attached bool
	dataDir  string
	db       *sql.DB
}

// NewBackend creates a new SQLite backend instance.
// The backend is not attached; call Attach to open the database.
func NewBackend() *Backend {
	return &Backend{}
}

// Open creates a backend and attaches it to dataDir.
func Open(dataDir string) (*Backend, error) {
	b := NewBackend()
	if err := b.Attach(dataDir); err != nil {
		return nil, err
	}
	return b, nil
}

// Attach opens the database in dataDir, creating the directory and schema
// if needed. Existing data is kept.
// Returns ErrAttached if already attached.
func (b *Backend) Attach(dataDir string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.attached {
		return types.ErrAttached
	}
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	dbPath := filepath.Join(dataDir, DBFile)
	db, err := sql.Open("sqlite", "file:"+dbPath+dsnParams)
	if err != nil {
		return fmt.Errorf("open %s: %w", dbPath, err)
	}
	if err := initSchema(db); err != nil {
		db.Close()
		return err
	}

	b.db = db
	b.dataDir = dataDir
	b.attached = true
	return nil
}

func initSchema(db *sql.DB) error {
	for _, ddl := range schemaDDL {
		if _, err := db.Exec(ddl); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	for _, ddl := range indexDDL {
		if _, err := db.Exec(ddl); err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	return nil
}

// Detach closes the database. After Detach, Begin and LoadTypes fail with
// StorageUnavailable. Detach is idempotent.
func (b *Backend) Detach() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.attached {
		return nil
	}
	err := b.db.Close()
	b.db = nil
	b.attached = false
	return err
}

// Close implements types.Storage.
func (b *Backend) Close() error { return b.Detach() }

// DataDir returns the directory the backend is attached to.
func (b *Backend) DataDir() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.dataDir
}

func (b *Backend) handle() (*sql.DB, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.attached {
		return nil, types.ErrDetached
	}
	return b.db, nil
}

// Begin starts an IMMEDIATE transaction bound to ctx.
func (b *Backend) Begin(ctx context.Context) (types.Tx, error) {
	db, err := b.handle()
	if err != nil {
		return nil, types.Storagef(err, "begin transaction")
	}
	sqlTx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, types.Storagef(err, "begin transaction")
	}
	return &tx{tx: sqlTx}, nil
}

// LoadTypes returns the saved type definitions ordered by name.
func (b *Backend) LoadTypes(ctx context.Context) ([]types.EntityType, []types.RelationType, error) {
	db, err := b.handle()
	if err != nil {
		return nil, nil, types.Storagef(err, "load types")
	}
	ents, err := loadDefinitions[types.EntityType](ctx, db, "entity_types")
	if err != nil {
		return nil, nil, err
	}
	rels, err := loadDefinitions[types.RelationType](ctx, db, "relation_types")
	if err != nil {
		return nil, nil, err
	}
	return ents, rels, nil
}

// newUUID generates a UUID v7 string.
func newUUID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", types.Storagef(err, "generate id")
	}
	return id.String(), nil
}

// wrap maps a driver error to the taxonomy. sql.ErrNoRows becomes notFound
// when one is given.
func wrap(err error, notFound error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	if notFound != nil && errors.Is(err, sql.ErrNoRows) {
		return notFound
	}
	return types.Storagef(err, format, args...)
}
