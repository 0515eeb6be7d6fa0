package sqlite

import (
	"fmt"
	"regexp"
)

// Schema DDL for all tables. Properties and type definitions are stored as
// JSON text; timestamps as RFC 3339 text in UTC.
const (
	createEntityTypes = `CREATE TABLE IF NOT EXISTS entity_types (
    name TEXT PRIMARY KEY,
    definition TEXT NOT NULL,
    created_at TEXT NOT NULL
);`

	createRelationTypes = `CREATE TABLE IF NOT EXISTS relation_types (
    name TEXT PRIMARY KEY,
    definition TEXT NOT NULL,
    created_at TEXT NOT NULL
);`

	createEntities = `CREATE TABLE IF NOT EXISTS entities (
    entity_id TEXT PRIMARY KEY,
    entity_type TEXT NOT NULL,
    properties TEXT NOT NULL,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);`

	createRelations = `CREATE TABLE IF NOT EXISTS relations (
    relation_id TEXT PRIMARY KEY,
    relation_type TEXT NOT NULL,
    from_id TEXT NOT NULL,
    to_id TEXT NOT NULL,
    properties TEXT NOT NULL,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    FOREIGN KEY (from_id) REFERENCES entities(entity_id) ON DELETE CASCADE,
    FOREIGN KEY (to_id) REFERENCES entities(entity_id) ON DELETE CASCADE
);`
)

// Index DDL for lookups by type and for traversal.
const (
	idxEntitiesType      = `CREATE INDEX IF NOT EXISTS idx_entities_type ON entities(entity_type);`
	idxRelationsTypeFrom = `CREATE INDEX IF NOT EXISTS idx_relations_type_from ON relations(relation_type, from_id);`
	idxRelationsTypeTo   = `CREATE INDEX IF NOT EXISTS idx_relations_type_to ON relations(relation_type, to_id);`
	idxRelationsFrom     = `CREATE INDEX IF NOT EXISTS idx_relations_from ON relations(from_id);`
	idxRelationsTo       = `CREATE INDEX IF NOT EXISTS idx_relations_to ON relations(to_id);`
)

// schemaDDL lists all CREATE TABLE statements in dependency order.
var schemaDDL = []string{
	createEntityTypes,
	createRelationTypes,
	createEntities,
	createRelations,
}

// indexDDL lists all CREATE INDEX statements.
var indexDDL = []string{
	idxEntitiesType,
	idxRelationsTypeFrom,
	idxRelationsTypeTo,
	idxRelationsFrom,
	idxRelationsTo,
}

// propertyName matches names that may be spliced into SQL text. Type
// validation enforces the same rule on every declared property.
var propertyName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// propertyExpr returns the json_extract expression for a property. The
// path is spliced as a literal so that expression indexes match.
func propertyExpr(name string) (string, error) {
	if !propertyName.MatchString(name) {
		return "", fmt.Errorf("property name %q cannot be used in SQL", name)
	}
	return fmt.Sprintf("json_extract(properties, '$.%s')", name), nil
}

// propertyIndexDDL returns the expression index for an indexed property of
// table, which is "entities" or "relations".
func propertyIndexDDL(table, typeColumn, name string) (string, error) {
	expr, err := propertyExpr(name)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_prop_%s ON %s(%s, %s);", table, name, table, typeColumn, expr), nil
}
