package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/mesh-intelligence/graphctx/pkg/types"
)

// loadDefinitions reads every definition in table ordered by name.
func loadDefinitions[T any](ctx context.Context, db *sql.DB, table string) ([]T, error) {
	rows, err := db.QueryContext(ctx, "SELECT definition FROM "+table+" ORDER BY name")
	if err != nil {
		return nil, types.Storagef(err, "load %s", table)
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, types.Storagef(err, "scan %s", table)
		}
		var def T
		if err := json.Unmarshal([]byte(raw), &def); err != nil {
			return nil, types.Storagef(err, "decode %s definition", table)
		}
		out = append(out, def)
	}
	if err := rows.Err(); err != nil {
		return nil, types.Storagef(err, "load %s", table)
	}
	return out, nil
}

func (t *tx) SaveEntityType(ctx context.Context, def types.EntityType) error {
	return saveDefinition(ctx, t, "entity_types", def.Name, def, def.Equal, def.Indexed, "entities", "entity_type")
}

func (t *tx) SaveRelationType(ctx context.Context, def types.RelationType) error {
	return saveDefinition(ctx, t, "relation_types", def.Name, def, def.Equal, def.Indexed, "relations", "relation_type")
}

// saveDefinition inserts def under name unless a definition is already
// stored. An identical stored definition is a no-op; a different one is a
// TypeConflict. Indexed properties get an expression index on dataTable.
func saveDefinition[T any](ctx context.Context, t *tx, table, name string, def T, equal func(T) bool,
	indexed []string, dataTable, typeColumn string) error {
	var raw string
	err := t.tx.QueryRowContext(ctx, "SELECT definition FROM "+table+" WHERE name = ?", name).Scan(&raw)
	switch {
	case err == nil:
		var cur T
		if err := json.Unmarshal([]byte(raw), &cur); err != nil {
			return types.Storagef(err, "decode %s definition %s", table, name)
		}
		if equal(cur) {
			return nil
		}
		return &types.Error{Kind: types.KindTypeConflict, Type: name}
	case !errors.Is(err, sql.ErrNoRows):
		return types.Storagef(err, "read %s definition %s", table, name)
	}

	data, err := json.Marshal(def)
	if err != nil {
		return types.Storagef(err, "encode %s definition %s", table, name)
	}
	if _, err := t.tx.ExecContext(ctx,
		"INSERT INTO "+table+" (name, definition, created_at) VALUES (?, ?, ?)",
		name, string(data), formatTime(time.Now())); err != nil {
		return types.Storagef(err, "insert %s definition %s", table, name)
	}

	for _, prop := range indexed {
		ddl, err := propertyIndexDDL(dataTable, typeColumn, prop)
		if err != nil {
			return types.Storagef(err, "index %s.%s", name, prop)
		}
		if _, err := t.tx.ExecContext(ctx, ddl); err != nil {
			return types.Storagef(err, "create index %s.%s", name, prop)
		}
	}
	return nil
}
