// Package txn binds each operation to exactly one storage transaction.
//
// Manager.WithTransaction begins a transaction, hands the operation a Scope
// bound to it, and finishes the transaction exactly once: commit when the
// operation returns nil, rollback on error, panic, cancellation or a failed
// commit. A Scope validates every mutation against the type registry before
// it reaches storage and rejects all calls once its transaction is finished.
package txn

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/mesh-intelligence/graphctx/internal/ctxlog"
	"github.com/mesh-intelligence/graphctx/internal/registry"
	"github.com/mesh-intelligence/graphctx/internal/translate"
	"github.com/mesh-intelligence/graphctx/internal/validate"
	"github.com/mesh-intelligence/graphctx/pkg/types"
)

// Manager owns the commit-or-rollback decision for every transaction.
type Manager struct {
	storage types.Storage
	reg     *registry.Registry
	val     *validate.Validator
	tr      *translate.Translator
}

// NewManager returns a manager running on storage and validating against reg.
func NewManager(storage types.Storage, reg *registry.Registry) *Manager {
	return &Manager{
		storage: storage,
		reg:     reg,
		val:     validate.New(reg),
		tr:      translate.New(reg),
	}
}

// Registry returns the registry the manager validates against.
func (m *Manager) Registry() *registry.Registry { return m.reg }

// WithTransaction runs op in a new transaction.
//
// The transaction commits when op returns nil and ctx is still live. It
// rolls back when op returns an error (which is returned), when op panics
// (the panic is re-raised after rollback), and when ctx is done (a
// StorageUnavailable error wrapping ctx.Err() is returned). A failed commit
// is rolled back and reported as TransactionCommitFailed.
func (m *Manager) WithTransaction(ctx context.Context, op func(*Scope) error) error {
	if err := ctx.Err(); err != nil {
		return cancelled(err)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return types.Storagef(err, "generate transaction id")
	}
	ctx = ctxlog.With(ctx, "tx_id", id.String())
	log := ctxlog.FromContext(ctx)

	tx, err := m.storage.Begin(ctx)
	if err != nil {
		return types.Storagef(err, "begin transaction")
	}
	log.Debug("transaction begin")
	s := &Scope{m: m, tx: tx, ctx: ctx, id: id.String()}

	defer func() {
		p := recover()
		if p == nil {
			return
		}
		s.finish()
		if rbErr := tx.Rollback(); rbErr != nil {
			log.Error("rollback after panic failed", "error", rbErr)
		}
		log.Error("transaction rolled back after panic", "panic", p)
		panic(p)
	}()

	opErr := op(s)
	if opErr == nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			opErr = cancelled(ctxErr)
		}
	}
	s.finish()

	if opErr != nil {
		return m.rollback(ctx, tx, opErr)
	}

	if err := tx.Commit(); err != nil {
		log.Error("transaction commit failed", "error", err)
		if rbErr := tx.Rollback(); rbErr != nil {
			log.Error("rollback after failed commit", "error", rbErr)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return cancelled(ctxErr)
		}
		return &types.Error{Kind: types.KindCommitFailed, Err: err}
	}
	log.Debug("transaction commit")
	return nil
}

func (m *Manager) rollback(ctx context.Context, tx types.Tx, cause error) error {
	log := ctxlog.FromContext(ctx)
	if err := tx.Rollback(); err != nil {
		log.Error("transaction rollback failed", "error", err, "cause", cause)
		return errors.Join(cause, types.Storagef(err, "rollback"))
	}
	log.Debug("transaction rollback", "cause", cause)
	return cause
}

// WithinScope runs op in s when s is non-nil and in a new transaction
// otherwise. Callers that may or may not already hold a scope use it to
// avoid starting a second transaction.
func (m *Manager) WithinScope(ctx context.Context, s *Scope, op func(*Scope) error) error {
	if s != nil {
		return s.WithTransaction(op)
	}
	return m.WithTransaction(ctx, op)
}

// Do runs op in a new transaction and returns its result once committed.
func Do[T any](ctx context.Context, m *Manager, op func(*Scope) (T, error)) (T, error) {
	var out T
	err := m.WithTransaction(ctx, func(s *Scope) error {
		v, err := op(s)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

// RegisterEntityType registers def and persists it. An identical definition
// that is already registered succeeds with created=false without touching
// storage. A new definition is saved in its own transaction and published
// to the registry only after commit.
func (m *Manager) RegisterEntityType(ctx context.Context, def types.EntityType) (created bool, err error) {
	exists, err := m.reg.CheckEntityType(def)
	if err != nil || exists {
		return false, err
	}
	err = m.WithTransaction(ctx, func(s *Scope) error {
		return s.do(func(tx types.Tx) error { return tx.SaveEntityType(s.ctx, def) })
	})
	if err != nil {
		return false, err
	}
	return m.reg.RegisterEntityType(def)
}

// RegisterRelationType registers def with the same rules as
// RegisterEntityType. Every endpoint type must already be registered.
func (m *Manager) RegisterRelationType(ctx context.Context, def types.RelationType) (created bool, err error) {
	exists, err := m.reg.CheckRelationType(def)
	if err != nil || exists {
		return false, err
	}
	err = m.WithTransaction(ctx, func(s *Scope) error {
		return s.do(func(tx types.Tx) error { return tx.SaveRelationType(s.ctx, def) })
	})
	if err != nil {
		return false, err
	}
	return m.reg.RegisterRelationType(def)
}

// LoadTypes reads the definitions saved in storage into the registry.
func (m *Manager) LoadTypes(ctx context.Context) error {
	ents, rels, err := m.storage.LoadTypes(ctx)
	if err != nil {
		return types.Storagef(err, "load types")
	}
	if err := m.reg.Load(ents, rels); err != nil {
		return fmt.Errorf("load types: %w", err)
	}
	ctxlog.FromContext(ctx).Info("types loaded", "entity_types", len(ents), "relation_types", len(rels))
	return nil
}

func cancelled(err error) error {
	return &types.Error{Kind: types.KindStorageUnavailable, Msg: "request cancelled", Err: err}
}
