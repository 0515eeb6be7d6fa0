package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/mesh-intelligence/graphctx/pkg/types"
)

// tx implements types.Tx over a database/sql transaction.
type tx struct {
	tx *sql.Tx
}

func (t *tx) Commit() error {
	return t.tx.Commit()
}

// Rollback maps sql.ErrTxDone to nil: the transaction has already finished,
// either by Commit or because its context was cancelled.
func (t *tx) Rollback() error {
	err := t.tx.Rollback()
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return err
}

func (t *tx) CreateEntity(ctx context.Context, entityType string, props types.Properties) (*types.EntityRow, error) {
	id, err := newUUID()
	if err != nil {
		return nil, err
	}
	data, err := encodeProperties(props)
	if err != nil {
		return nil, types.Storagef(err, "create entity")
	}
	now := time.Now().UTC()
	_, err = t.tx.ExecContext(ctx,
		`INSERT INTO entities (entity_id, entity_type, properties, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		id, entityType, data, formatTime(now), formatTime(now))
	if err != nil {
		return nil, types.Storagef(err, "insert entity")
	}
	return t.GetEntity(ctx, id)
}

func (t *tx) GetEntity(ctx context.Context, id string) (*types.EntityRow, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+entityColumns+` FROM entities WHERE entity_id = ?`, id)
	e, err := scanEntity(row)
	if err != nil {
		return nil, wrap(err, types.EntityNotFound(id), "get entity %s", id)
	}
	return e, nil
}

func (t *tx) UpdateEntity(ctx context.Context, id string, props types.Properties) (*types.EntityRow, error) {
	data, err := encodeProperties(props)
	if err != nil {
		return nil, types.Storagef(err, "update entity")
	}
	res, err := t.tx.ExecContext(ctx,
		`UPDATE entities SET properties = ?, updated_at = ? WHERE entity_id = ?`,
		data, formatTime(time.Now()), id)
	if err := affected(res, err, types.EntityNotFound(id), "update entity %s", id); err != nil {
		return nil, err
	}
	return t.GetEntity(ctx, id)
}

// DeleteEntity removes the entity. Foreign keys cascade to its relations.
func (t *tx) DeleteEntity(ctx context.Context, id string) error {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM entities WHERE entity_id = ?`, id)
	return affected(res, err, types.EntityNotFound(id), "delete entity %s", id)
}

func (t *tx) CreateRelation(ctx context.Context, relationType, fromID, toID string, props types.Properties) (*types.RelationRow, error) {
	for _, end := range []string{fromID, toID} {
		var one int
		err := t.tx.QueryRowContext(ctx, `SELECT 1 FROM entities WHERE entity_id = ?`, end).Scan(&one)
		if err != nil {
			return nil, wrap(err, types.EntityNotFound(end), "check endpoint %s", end)
		}
	}
	id, err := newUUID()
	if err != nil {
		return nil, err
	}
	data, err := encodeProperties(props)
	if err != nil {
		return nil, types.Storagef(err, "create relation")
	}
	now := formatTime(time.Now())
	_, err = t.tx.ExecContext(ctx,
		`INSERT INTO relations (relation_id, relation_type, from_id, to_id, properties, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, relationType, fromID, toID, data, now, now)
	if err != nil {
		return nil, types.Storagef(err, "insert relation")
	}
	return t.GetRelation(ctx, id)
}

func (t *tx) GetRelation(ctx context.Context, id string) (*types.RelationRow, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+relationColumns+` FROM relations WHERE relation_id = ?`, id)
	r, err := scanRelation(row)
	if err != nil {
		return nil, wrap(err, types.RelationNotFound(id), "get relation %s", id)
	}
	return r, nil
}

func (t *tx) UpdateRelation(ctx context.Context, id string, props types.Properties) (*types.RelationRow, error) {
	data, err := encodeProperties(props)
	if err != nil {
		return nil, types.Storagef(err, "update relation")
	}
	res, err := t.tx.ExecContext(ctx,
		`UPDATE relations SET properties = ?, updated_at = ? WHERE relation_id = ?`,
		data, formatTime(time.Now()), id)
	if err := affected(res, err, types.RelationNotFound(id), "update relation %s", id); err != nil {
		return nil, err
	}
	return t.GetRelation(ctx, id)
}

func (t *tx) DeleteRelation(ctx context.Context, id string) error {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM relations WHERE relation_id = ?`, id)
	return affected(res, err, types.RelationNotFound(id), "delete relation %s", id)
}

// affected reports notFound when a statement touched no rows.
func affected(res sql.Result, err error, notFound error, format string, args ...any) error {
	if err != nil {
		return types.Storagef(err, format, args...)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return types.Storagef(err, format, args...)
	}
	if n == 0 {
		return notFound
	}
	return nil
}
