package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/graphctx/internal/storagetest"
	"github.com/mesh-intelligence/graphctx/pkg/types"
)

func openTemp(t *testing.T) *Backend {
	t.Helper()
	b, err := Open(t.TempDir())
	require.NoError(t, err)
	return b
}

func TestConformance(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) types.Storage { return openTemp(t) })
}

func TestAttach(t *testing.T) {
	dir := t.TempDir()
	b := NewBackend()
	require.NoError(t, b.Attach(dir))
	defer b.Detach()

	_, err := os.Stat(filepath.Join(dir, DBFile))
	require.NoError(t, err, "database file created")
	assert.Equal(t, dir, b.DataDir())
	assert.ErrorIs(t, b.Attach(dir), types.ErrAttached)
}

func TestDetach(t *testing.T) {
	b := openTemp(t)
	require.NoError(t, b.Detach())
	require.NoError(t, b.Detach(), "detach is idempotent")

	_, err := b.Begin(context.Background())
	assert.ErrorIs(t, err, types.ErrStorageUnavailable)
	assert.ErrorIs(t, err, types.ErrDetached)
	_, _, err = b.LoadTypes(context.Background())
	assert.ErrorIs(t, err, types.ErrStorageUnavailable)
}

func TestReopenKeepsData(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	person := types.EntityType{
		Name:       "Person",
		Properties: types.NewPropertySchema(types.Prop("name", types.PropertyString, true)),
	}

	b, err := Open(dir)
	require.NoError(t, err)
	tx, err := b.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.SaveEntityType(ctx, person))
	row, err := tx.CreateEntity(ctx, "Person", types.Properties{"name": types.String("Alice")})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	require.NoError(t, b.Close())

	b2, err := Open(dir)
	require.NoError(t, err)
	defer b2.Close()

	ents, rels, err := b2.LoadTypes(ctx)
	require.NoError(t, err)
	require.Len(t, ents, 1)
	assert.True(t, person.Equal(ents[0]))
	assert.Empty(t, rels)

	tx2, err := b2.Begin(ctx)
	require.NoError(t, err)
	defer tx2.Rollback()
	got, err := tx2.GetEntity(ctx, row.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"name": "Alice"}, got.Properties)
}

func TestIndexedPropertyCreatesIndex(t *testing.T) {
	b := openTemp(t)
	defer b.Close()
	ctx := context.Background()

	tx, err := b.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.SaveEntityType(ctx, types.EntityType{
		Name:       "Person",
		Properties: types.NewPropertySchema(types.Prop("email", types.PropertyString, true)),
		Indexed:    []string{"email"},
	}))
	require.NoError(t, tx.Commit())

	db, err := b.handle()
	require.NoError(t, err)
	var name string
	err = db.QueryRowContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'index' AND name = ?`, "idx_entities_prop_email").Scan(&name)
	require.NoError(t, err)
	assert.Equal(t, "idx_entities_prop_email", name)
}

func TestCreateRelationRequiresEndpoints(t *testing.T) {
	b := openTemp(t)
	defer b.Close()
	ctx := context.Background()

	tx, err := b.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback()
	p, err := tx.CreateEntity(ctx, "Person", types.Properties{})
	require.NoError(t, err)
	_, err = tx.CreateRelation(ctx, "WORKS_AT", p.ID, "missing", types.Properties{})
	require.ErrorIs(t, err, types.ErrEntityNotFound)
	var te *types.Error
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "missing", te.ID)
}

func TestTraversalWideFrontier(t *testing.T) {
	b := openTemp(t)
	defer b.Close()
	ctx := context.Background()

	tx, err := b.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback()

	hub, err := tx.CreateEntity(ctx, "Hub", types.Properties{})
	require.NoError(t, err)
	const n = maxInList + 120
	for i := 0; i < n; i++ {
		leaf, err := tx.CreateEntity(ctx, "Leaf", types.Properties{})
		require.NoError(t, err)
		_, err = tx.CreateRelation(ctx, "HAS", hub.ID, leaf.ID, types.Properties{})
		require.NoError(t, err)
		_, err = tx.CreateRelation(ctx, "BACK", leaf.ID, hub.ID, types.Properties{})
		require.NoError(t, err)
	}

	res, err := tx.ExecuteTraversal(ctx, types.BackendTraversal{
		Start:         hub.ID,
		Direction:     types.Outbound,
		MaxDepth:      types.UnboundedDepth,
		RelationTypes: []string{"HAS", "BACK"},
	})
	require.NoError(t, err)
	assert.Len(t, res.Entities, n)
	assert.Len(t, res.Relations, 2*n)
	for _, hit := range res.Entities {
		assert.Equal(t, 1, hit.Depth)
	}
}
