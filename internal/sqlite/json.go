package sqlite

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mesh-intelligence/graphctx/pkg/types"
)

// Column lists shared by every entity and relation select.
const (
	entityColumns   = "entity_id, entity_type, properties, created_at, updated_at"
	relationColumns = "relation_id, relation_type, from_id, to_id, properties, created_at, updated_at"
)

// scanner is implemented by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func encodeProperties(props types.Properties) (string, error) {
	if props == nil {
		return "{}", nil
	}
	data, err := json.Marshal(props)
	if err != nil {
		return "", fmt.Errorf("encode properties: %w", err)
	}
	return string(data), nil
}

// decodeProperties decodes a properties column. Numbers are kept as
// json.Number so integers survive without float rounding.
func decodeProperties(s string) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.UseNumber()
	props := map[string]any{}
	if err := dec.Decode(&props); err != nil {
		return nil, fmt.Errorf("decode properties: %w", err)
	}
	return props, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}

func scanEntity(sc scanner) (*types.EntityRow, error) {
	var row types.EntityRow
	var props, created, upd string
	if err := sc.Scan(&row.ID, &row.Type, &props, &created, &upd); err != nil {
		return nil, err
	}
	if err := fillRow(&row.Properties, &row.CreatedAt, &row.UpdatedAt, props, created, upd); err != nil {
		return nil, err
	}
	return &row, nil
}

func scanRelation(sc scanner) (*types.RelationRow, error) {
	var row types.RelationRow
	var props, created, upd string
	if err := sc.Scan(&row.ID, &row.Type, &row.FromID, &row.ToID, &props, &created, &upd); err != nil {
		return nil, err
	}
	if err := fillRow(&row.Properties, &row.CreatedAt, &row.UpdatedAt, props, created, upd); err != nil {
		return nil, err
	}
	return &row, nil
}

func fillRow(props *map[string]any, created, updated *time.Time, rawProps, rawCreated, rawUpdated string) error {
	var err error
	if *props, err = decodeProperties(rawProps); err != nil {
		return err
	}
	if *created, err = parseTime(rawCreated); err != nil {
		return err
	}
	*updated, err = parseTime(rawUpdated)
	return err
}
