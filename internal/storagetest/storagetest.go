// Package storagetest is a conformance suite for types.Storage
// implementations. Backend packages call Run from their tests.
package storagetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/graphctx/pkg/types"
)

// Factory returns a fresh, empty storage. Run closes it when the test ends.
type Factory func(t *testing.T) types.Storage

// Run runs the conformance suite against storages built by newStorage.
func Run(t *testing.T, newStorage Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, st types.Storage)
	}{
		{"EntityCRUD", testEntityCRUD},
		{"RelationCRUD", testRelationCRUD},
		{"DeleteEntityCascades", testDeleteCascades},
		{"RollbackDiscardsWrites", testRollback},
		{"ReadYourWrites", testReadYourWrites},
		{"FinishedTxRejectsCalls", testFinishedTx},
		{"Query", testQuery},
		{"QueryLargeIntegers", testQueryLargeIntegers},
		{"QueryPagination", testQueryPagination},
		{"Traversal", testTraversal},
		{"TraversalFilters", testTraversalFilters},
		{"TypePersistence", testTypePersistence},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := newStorage(t)
			t.Cleanup(func() { _ = st.Close() })
			tt.fn(t, st)
		})
	}
}

func begin(t *testing.T, st types.Storage) types.Tx {
	t.Helper()
	tx, err := st.Begin(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = tx.Rollback() })
	return tx
}

// inTx runs fn in a transaction and commits it.
func inTx(t *testing.T, st types.Storage, fn func(tx types.Tx)) {
	t.Helper()
	tx := begin(t, st)
	fn(tx)
	require.NoError(t, tx.Commit())
}

func mustEntity(t *testing.T, tx types.Tx, typ string, props types.Properties) string {
	t.Helper()
	row, err := tx.CreateEntity(context.Background(), typ, props)
	require.NoError(t, err)
	return row.ID
}

func mustRelation(t *testing.T, tx types.Tx, typ, from, to string) string {
	t.Helper()
	row, err := tx.CreateRelation(context.Background(), typ, from, to, types.Properties{})
	require.NoError(t, err)
	return row.ID
}

func decoded(t *testing.T, plain map[string]any) types.Properties {
	t.Helper()
	p, err := types.PropertiesFromAny(plain)
	require.NoError(t, err)
	return p
}

func testEntityCRUD(t *testing.T, st types.Storage) {
	ctx := context.Background()
	props := types.Properties{
		"name":    types.String("Alice"),
		"age":     types.Int(30),
		"score":   types.Float(9.5),
		"active":  types.Bool(true),
		"tags":    types.List(types.String("a")),
		"address": types.Object(map[string]types.Value{"city": types.String("Paris")}),
	}

	var id string
	inTx(t, st, func(tx types.Tx) {
		row, err := tx.CreateEntity(ctx, "Person", props)
		require.NoError(t, err)
		assert.NotEmpty(t, row.ID)
		assert.Equal(t, "Person", row.Type)
		assert.False(t, row.CreatedAt.IsZero())
		id = row.ID
	})

	tx := begin(t, st)
	row, err := tx.GetEntity(ctx, id)
	require.NoError(t, err)
	assert.True(t, props.Equal(decoded(t, row.Properties)), "got %v", row.Properties)

	updated, err := tx.UpdateEntity(ctx, id, types.Properties{"name": types.String("Alicia")})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"name": "Alicia"}, updated.Properties, "update replaces properties")
	assert.False(t, updated.UpdatedAt.Before(row.UpdatedAt))

	require.NoError(t, tx.DeleteEntity(ctx, id))
	_, err = tx.GetEntity(ctx, id)
	assert.ErrorIs(t, err, types.ErrEntityNotFound)
	assert.ErrorIs(t, tx.DeleteEntity(ctx, id), types.ErrEntityNotFound)
	_, err = tx.UpdateEntity(ctx, id, types.Properties{})
	assert.ErrorIs(t, err, types.ErrEntityNotFound)
	require.NoError(t, tx.Commit())
}

func testRelationCRUD(t *testing.T, st types.Storage) {
	ctx := context.Background()
	tx := begin(t, st)
	p := mustEntity(t, tx, "Person", types.Properties{"name": types.String("Alice")})
	c := mustEntity(t, tx, "Company", types.Properties{"name": types.String("Acme")})

	_, err := tx.CreateRelation(ctx, "WORKS_AT", p, "missing", types.Properties{})
	assert.ErrorIs(t, err, types.ErrEntityNotFound)

	row, err := tx.CreateRelation(ctx, "WORKS_AT", p, c, types.Properties{"role": types.String("eng")})
	require.NoError(t, err)
	assert.Equal(t, p, row.FromID)
	assert.Equal(t, c, row.ToID)

	got, err := tx.GetRelation(ctx, row.ID)
	require.NoError(t, err)
	assert.Equal(t, "WORKS_AT", got.Type)
	assert.Equal(t, map[string]any{"role": "eng"}, got.Properties)

	upd, err := tx.UpdateRelation(ctx, row.ID, types.Properties{"role": types.String("lead")})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"role": "lead"}, upd.Properties)

	require.NoError(t, tx.DeleteRelation(ctx, row.ID))
	_, err = tx.GetRelation(ctx, row.ID)
	assert.ErrorIs(t, err, types.ErrRelationNotFound)
	assert.ErrorIs(t, tx.DeleteRelation(ctx, row.ID), types.ErrRelationNotFound)
	_, err = tx.UpdateRelation(ctx, row.ID, types.Properties{})
	assert.ErrorIs(t, err, types.ErrRelationNotFound)
}

func testDeleteCascades(t *testing.T, st types.Storage) {
	ctx := context.Background()
	var p, c, r string
	inTx(t, st, func(tx types.Tx) {
		p = mustEntity(t, tx, "Person", types.Properties{})
		c = mustEntity(t, tx, "Company", types.Properties{})
		r = mustRelation(t, tx, "WORKS_AT", p, c)
	})
	inTx(t, st, func(tx types.Tx) {
		require.NoError(t, tx.DeleteEntity(ctx, c))
	})

	tx := begin(t, st)
	_, err := tx.GetRelation(ctx, r)
	assert.ErrorIs(t, err, types.ErrRelationNotFound)
	_, err = tx.GetEntity(ctx, p)
	assert.NoError(t, err)
}

func testRollback(t *testing.T, st types.Storage) {
	ctx := context.Background()
	tx := begin(t, st)
	id := mustEntity(t, tx, "Person", types.Properties{"name": types.String("Ghost")})
	require.NoError(t, tx.Rollback())
	require.NoError(t, tx.Rollback(), "second rollback is a no-op")

	tx2 := begin(t, st)
	_, err := tx2.GetEntity(ctx, id)
	assert.ErrorIs(t, err, types.ErrEntityNotFound)
	rows, err := tx2.ExecuteQuery(ctx, types.BackendQuery{EntityType: "Person", Limit: types.NoLimit})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func testReadYourWrites(t *testing.T, st types.Storage) {
	ctx := context.Background()
	tx := begin(t, st)
	id := mustEntity(t, tx, "Person", types.Properties{"name": types.String("Alice")})
	rows, err := tx.ExecuteQuery(ctx, types.BackendQuery{EntityType: "Person", Limit: types.NoLimit})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, id, rows[0].ID)
}

func testFinishedTx(t *testing.T, st types.Storage) {
	ctx := context.Background()
	tx := begin(t, st)
	require.NoError(t, tx.Commit())
	_, err := tx.CreateEntity(ctx, "Person", types.Properties{})
	assert.ErrorIs(t, err, types.ErrStorageUnavailable)
	assert.Error(t, tx.Commit())
}

func testQuery(t *testing.T, st types.Storage) {
	ctx := context.Background()
	var alice, bob string
	inTx(t, st, func(tx types.Tx) {
		alice = mustEntity(t, tx, "Person", types.Properties{
			"name": types.String("Alice Smith"), "age": types.Int(30), "score": types.Float(1.5),
			"active": types.Bool(true), "tags": types.List(types.String("ops")),
			"born": types.String("1994-05-01T00:00:00Z"),
		})
		bob = mustEntity(t, tx, "Person", types.Properties{
			"name": types.String("Bob"), "age": types.Int(20), "score": types.Float(3),
			"active": types.Bool(false), "tags": types.List(types.String("dev")),
			"born": types.String("2004-05-01T00:00:00Z"),
		})
		mustEntity(t, tx, "Company", types.Properties{"name": types.String("Alice Smith")})
	})

	tests := []struct {
		name string
		pred types.Predicate
		want []string
	}{
		{"string eq", types.Predicate{Field: "name", Type: types.PropertyString, Op: types.OpEq, Value: types.String("Bob")}, []string{bob}},
		{"string contains", types.Predicate{Field: "name", Type: types.PropertyString, Op: types.OpContains, Value: types.String("Smi")}, []string{alice}},
		{"string gt", types.Predicate{Field: "name", Type: types.PropertyString, Op: types.OpGt, Value: types.String("B")}, []string{bob}},
		{"integer gte", types.Predicate{Field: "age", Type: types.PropertyInteger, Op: types.OpGte, Value: types.Int(25)}, []string{alice}},
		{"integer neq", types.Predicate{Field: "age", Type: types.PropertyInteger, Op: types.OpNeq, Value: types.Int(30)}, []string{bob}},
		{"float lt", types.Predicate{Field: "score", Type: types.PropertyFloat, Op: types.OpLt, Value: types.Int(2)}, []string{alice}},
		{"boolean eq", types.Predicate{Field: "active", Type: types.PropertyBoolean, Op: types.OpEq, Value: types.Bool(false)}, []string{bob}},
		{"list contains", types.Predicate{Field: "tags", Type: types.PropertyList, Op: types.OpContains, Value: types.String("ops")}, []string{alice}},
		{"datetime lt", types.Predicate{Field: "born", Type: types.PropertyDatetime, Op: types.OpLt, Value: types.String("2000-01-01T00:00:00+01:00")}, []string{alice}},
		{"id eq", types.Predicate{Field: types.IDField, IsID: true, Op: types.OpEq, Value: types.String(bob)}, []string{bob}},
		{"missing property neq", types.Predicate{Field: "email", Type: types.PropertyString, Op: types.OpNeq, Value: types.String("x")}, []string{alice, bob}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := begin(t, st)
			rows, err := tx.ExecuteQuery(ctx, types.BackendQuery{
				EntityType: "Person",
				Predicates: []types.Predicate{tt.pred},
				OrderByID:  true,
				Limit:      types.NoLimit,
			})
			require.NoError(t, err)
			var got []string
			for _, r := range rows {
				got = append(got, r.ID)
			}
			assert.ElementsMatch(t, tt.want, got)
		})
	}
}

// Integers beyond 2^53 are not exactly representable as float64 and must
// still compare exactly.
func testQueryLargeIntegers(t *testing.T, st types.Storage) {
	ctx := context.Background()
	var large, below string
	inTx(t, st, func(tx types.Tx) {
		large = mustEntity(t, tx, "Item", types.Properties{"count": types.Int(9007199254740993)})
		below = mustEntity(t, tx, "Item", types.Properties{"count": types.Int(9007199254740992)})
	})

	tests := []struct {
		name string
		op   types.Operator
		want []string
	}{
		{"eq", types.OpEq, []string{large}},
		{"neq", types.OpNeq, []string{below}},
		{"lt", types.OpLt, []string{below}},
		{"gte", types.OpGte, []string{large}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := begin(t, st)
			rows, err := tx.ExecuteQuery(ctx, types.BackendQuery{
				EntityType: "Item",
				Predicates: []types.Predicate{{
					Field: "count", Type: types.PropertyInteger, Op: tt.op, Value: types.Int(9007199254740993),
				}},
				OrderByID: true,
				Limit:     types.NoLimit,
			})
			require.NoError(t, err)
			var got []string
			for _, r := range rows {
				got = append(got, r.ID)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func testQueryPagination(t *testing.T, st types.Storage) {
	ctx := context.Background()
	var ids []string
	inTx(t, st, func(tx types.Tx) {
		for i := 0; i < 7; i++ {
			ids = append(ids, mustEntity(t, tx, "Person", types.Properties{"age": types.Int(int64(i))}))
		}
	})

	pageOf := func(offset, limit int) []string {
		tx := begin(t, st)
		rows, err := tx.ExecuteQuery(ctx, types.BackendQuery{EntityType: "Person", OrderByID: true, Offset: offset, Limit: limit})
		require.NoError(t, err)
		var out []string
		for _, r := range rows {
			out = append(out, r.ID)
		}
		require.NoError(t, tx.Commit())
		return out
	}

	first := append(pageOf(0, 3), pageOf(3, 3)...)
	first = append(first, pageOf(6, 3)...)
	again := append(pageOf(0, 3), pageOf(3, 3)...)
	again = append(again, pageOf(6, 3)...)

	assert.Equal(t, first, again, "pages are deterministic")
	assert.ElementsMatch(t, ids, first)
	assert.IsIncreasing(t, first)
	assert.Empty(t, pageOf(10, 3))
	assert.Len(t, pageOf(0, 0), 0)

	// Predicates evaluated outside SQL must page the same way.
	tx := begin(t, st)
	rows, err := tx.ExecuteQuery(ctx, types.BackendQuery{
		EntityType: "Person",
		Predicates: []types.Predicate{{Field: "age", Type: types.PropertyInteger, Op: types.OpGte, Value: types.Int(0)}},
		OrderByID:  true, Offset: 1, Limit: 2,
	})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, first[1:3], []string{rows[0].ID, rows[1].ID})
}

// graph builds a -> b -> c, a -> d (KNOWS), e -> a.
func graph(t *testing.T, st types.Storage) map[string]string {
	ids := map[string]string{}
	inTx(t, st, func(tx types.Tx) {
		for _, n := range []string{"a", "b", "c", "e"} {
			ids[n] = mustEntity(t, tx, "Person", types.Properties{"name": types.String(n)})
		}
		ids["d"] = mustEntity(t, tx, "Company", types.Properties{"name": types.String("d")})
		ids["ab"] = mustRelation(t, tx, "KNOWS", ids["a"], ids["b"])
		ids["bc"] = mustRelation(t, tx, "KNOWS", ids["b"], ids["c"])
		ids["ad"] = mustRelation(t, tx, "WORKS_AT", ids["a"], ids["d"])
		ids["ea"] = mustRelation(t, tx, "KNOWS", ids["e"], ids["a"])
	})
	return ids
}

func hitIDs(rows types.TraversalRows) map[string]int {
	out := map[string]int{}
	for _, h := range rows.Entities {
		out[h.Entity.ID] = h.Depth
	}
	return out
}

func relIDs(rows types.TraversalRows) []string {
	var out []string
	for _, r := range rows.Relations {
		out = append(out, r.ID)
	}
	return out
}

func testTraversal(t *testing.T, st types.Storage) {
	ctx := context.Background()
	ids := graph(t, st)

	tests := []struct {
		name     string
		dir      types.Direction
		depth    int
		wantHits map[string]int
		wantRels []string
	}{
		{"outbound unbounded", types.Outbound, types.UnboundedDepth,
			map[string]int{ids["b"]: 1, ids["d"]: 1, ids["c"]: 2},
			[]string{ids["ab"], ids["ad"], ids["bc"]}},
		{"outbound depth one", types.Outbound, 1,
			map[string]int{ids["b"]: 1, ids["d"]: 1},
			[]string{ids["ab"], ids["ad"]}},
		{"depth zero", types.Outbound, 0, map[string]int{}, nil},
		{"inbound", types.Inbound, types.UnboundedDepth,
			map[string]int{ids["e"]: 1},
			[]string{ids["ea"]}},
		{"both", types.Both, types.UnboundedDepth,
			map[string]int{ids["b"]: 1, ids["d"]: 1, ids["e"]: 1, ids["c"]: 2},
			[]string{ids["ab"], ids["ad"], ids["ea"], ids["bc"]}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := begin(t, st)
			rows, err := tx.ExecuteTraversal(ctx, types.BackendTraversal{Start: ids["a"], Direction: tt.dir, MaxDepth: tt.depth})
			require.NoError(t, err)
			assert.Equal(t, tt.wantHits, hitIDs(rows))
			assert.ElementsMatch(t, tt.wantRels, relIDs(rows))
			for _, h := range rows.Entities {
				assert.NotEqual(t, ids["a"], h.Entity.ID, "start entity is excluded")
			}
		})
	}

	tx := begin(t, st)
	_, err := tx.ExecuteTraversal(ctx, types.BackendTraversal{Start: "missing", Direction: types.Outbound, MaxDepth: types.UnboundedDepth})
	assert.ErrorIs(t, err, types.ErrEntityNotFound)
}

func testTraversalFilters(t *testing.T, st types.Storage) {
	ctx := context.Background()
	ids := graph(t, st)
	tx := begin(t, st)

	rows, err := tx.ExecuteTraversal(ctx, types.BackendTraversal{
		Start: ids["a"], Direction: types.Outbound, MaxDepth: types.UnboundedDepth,
		RelationTypes: []string{"WORKS_AT"},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{ids["d"]: 1}, hitIDs(rows))

	rows, err = tx.ExecuteTraversal(ctx, types.BackendTraversal{
		Start: ids["e"], Direction: types.Outbound, MaxDepth: types.UnboundedDepth,
		EntityTypes: []string{"Company"},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{ids["d"]: 2}, hitIDs(rows), "walk continues through filtered entities")
	assert.Empty(t, relIDs(rows))
}

func testTypePersistence(t *testing.T, st types.Storage) {
	ctx := context.Background()
	person := types.EntityType{
		Name:        "Person",
		Description: "a human",
		Properties: types.NewPropertySchema(
			types.Prop("name", types.PropertyString, true),
			types.Prop("age", types.PropertyInteger, false),
		),
		Indexed: []string{"name"},
	}
	company := types.EntityType{Name: "Company", Properties: types.NewPropertySchema(types.Prop("name", types.PropertyString, true))}
	worksAt := types.RelationType{Name: "WORKS_AT", FromTypes: []string{"Person"}, ToTypes: []string{"Company"}}

	inTx(t, st, func(tx types.Tx) {
		require.NoError(t, tx.SaveEntityType(ctx, person))
		require.NoError(t, tx.SaveEntityType(ctx, company))
		require.NoError(t, tx.SaveRelationType(ctx, worksAt))
	})

	tx := begin(t, st)
	require.NoError(t, tx.SaveEntityType(ctx, person), "identical save is a no-op")
	changed := person.Clone()
	changed.Description = "changed"
	assert.ErrorIs(t, tx.SaveEntityType(ctx, changed), types.ErrTypeConflict)
	changedRel := worksAt.Clone()
	changedRel.ToTypes = []string{"Person"}
	assert.ErrorIs(t, tx.SaveRelationType(ctx, changedRel), types.ErrTypeConflict)
	require.NoError(t, tx.Rollback())

	ents, rels, err := st.LoadTypes(ctx)
	require.NoError(t, err)
	require.Len(t, ents, 2)
	assert.Equal(t, "Company", ents[0].Name)
	assert.True(t, person.Equal(ents[1]))
	assert.Equal(t, []string{"name", "age"}, ents[1].Properties.Names(), "declaration order survives")
	require.Len(t, rels, 1)
	assert.True(t, worksAt.Equal(rels[0]))
}
