// Package memstore is an in-memory graph storage backend.
//
// Each transaction works on a private copy of the committed state; Commit
// swaps the copy in and Rollback discards it. Transactions are serialized
// by a context-aware semaphore, so at most one is open at a time and a
// waiting Begin gives up when its context is done.
//
// A store created by Open keeps a JSONL snapshot in its data directory,
// loaded at open and rewritten on Close.
package memstore

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mesh-intelligence/graphctx/pkg/types"
)

var errTxDone = errors.New("transaction has already been committed or rolled back")

type state struct {
	entities      map[string]types.EntityRow
	entityOrder   []string
	relations     map[string]types.RelationRow
	relationOrder []string
	entityTypes   map[string]types.EntityType
	relationTypes map[string]types.RelationType
}

func newState() state {
	return state{
		entities:      map[string]types.EntityRow{},
		relations:     map[string]types.RelationRow{},
		entityTypes:   map[string]types.EntityType{},
		relationTypes: map[string]types.RelationType{},
	}
}

// clone copies the maps and order slices. Rows are values whose property
// maps are never mutated in place, so they are shared between copies.
func (s state) clone() state {
	return state{
		entities:      maps.Clone(s.entities),
		entityOrder:   slices.Clone(s.entityOrder),
		relations:     maps.Clone(s.relations),
		relationOrder: slices.Clone(s.relationOrder),
		entityTypes:   maps.Clone(s.entityTypes),
		relationTypes: maps.Clone(s.relationTypes),
	}
}

// Store implements types.Storage in memory.
type Store struct {
	sem chan struct{}

	mu      sync.RWMutex
	state   state
	closed  bool
	dataDir string
	nowFn   func() time.Time
}

// New returns an empty store.
func New() *Store {
	return &Store{
		sem:   make(chan struct{}, 1),
		state: newState(),
		nowFn: time.Now,
	}
}

// Begin waits for the running transaction, if any, to finish and starts a
// new one. It returns StorageUnavailable when ctx is done first or the
// store is closed.
func (s *Store) Begin(ctx context.Context) (types.Tx, error) {
	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, types.Storagef(ctx.Err(), "begin transaction")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		<-s.sem
		return nil, types.Storagef(types.ErrDetached, "begin transaction")
	}
	return &tx{store: s, ctx: ctx, state: s.state.clone()}, nil
}

// LoadTypes returns the saved type definitions ordered by name.
func (s *Store) LoadTypes(context.Context) ([]types.EntityType, []types.RelationType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, nil, types.Storagef(types.ErrDetached, "load types")
	}

	ents := make([]types.EntityType, 0, len(s.state.entityTypes))
	for _, def := range s.state.entityTypes {
		ents = append(ents, def.Clone())
	}
	sort.Slice(ents, func(i, j int) bool { return ents[i].Name < ents[j].Name })

	rels := make([]types.RelationType, 0, len(s.state.relationTypes))
	for _, def := range s.state.relationTypes {
		rels = append(rels, def.Clone())
	}
	sort.Slice(rels, func(i, j int) bool { return rels[i].Name < rels[j].Name })
	return ents, rels, nil
}

// closeWait bounds how long Close waits for a running transaction.
var closeWait = 5 * time.Second

// Close marks the store closed and, for a store created by Open, writes
// the committed state to the snapshot. Close waits up to closeWait for a
// running transaction to finish; a transaction still open after that can
// no longer commit. Close is idempotent.
func (s *Store) Close() error {
	timer := time.NewTimer(closeWait)
	defer timer.Stop()
	select {
	case s.sem <- struct{}{}:
		defer func() { <-s.sem }()
	case <-timer.C:
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.dataDir == "" {
		return nil
	}
	if err := writeSnapshot(s.dataDir, s.state); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}

// DataDir returns the snapshot directory, or "" for a purely in-memory
// store.
func (s *Store) DataDir() string { return s.dataDir }

func (s *Store) now() time.Time {
	return s.nowFn().UTC()
}

func newID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", types.Storagef(err, "generate id")
	}
	return id.String(), nil
}
