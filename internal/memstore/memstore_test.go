package memstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/graphctx/internal/storagetest"
	"github.com/mesh-intelligence/graphctx/pkg/types"
)

func TestConformance(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) types.Storage { return New() })
}

func TestBeginWaitsForRunningTransaction(t *testing.T) {
	s := New()
	tx, err := s.Begin(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = s.Begin(ctx)
	require.ErrorIs(t, err, types.ErrStorageUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, tx.Rollback())
	tx2, err := s.Begin(context.Background())
	require.NoError(t, err)
	require.NoError(t, tx2.Commit())
}

func TestCommitAfterCancelFails(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	_, err = tx.CreateEntity(ctx, "Person", types.Properties{})
	require.NoError(t, err)

	cancel()
	require.Error(t, tx.Commit())
	require.NoError(t, tx.Rollback())

	tx2, err := s.Begin(context.Background())
	require.NoError(t, err)
	rows, err := tx2.ExecuteQuery(context.Background(), types.BackendQuery{EntityType: "Person", Limit: types.NoLimit})
	require.NoError(t, err)
	assert.Empty(t, rows)
	require.NoError(t, tx2.Rollback())
}

func TestClosedStore(t *testing.T) {
	s := New()
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	_, err := s.Begin(context.Background())
	assert.ErrorIs(t, err, types.ErrStorageUnavailable)
	_, _, err = s.LoadTypes(context.Background())
	assert.ErrorIs(t, err, types.ErrStorageUnavailable)
}

func TestCloseWaitsForRunningTransaction(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	s, err := Open(dir)
	require.NoError(t, err)

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	row, err := tx.CreateEntity(ctx, "Person", types.Properties{"name": types.String("Alice")})
	require.NoError(t, err)

	closed := make(chan error, 1)
	go func() { closed <- s.Close() }()
	select {
	case <-closed:
		t.Fatal("Close returned while a transaction was open")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, tx.Commit())
	require.NoError(t, <-closed)

	s2, err := Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s2.Close() })
	tx2, err := s2.Begin(ctx)
	require.NoError(t, err)
	defer tx2.Rollback()
	_, err = tx2.GetEntity(ctx, row.ID)
	assert.NoError(t, err, "commit that finished during Close is in the snapshot")
}

func TestCloseDetachesStuckTransaction(t *testing.T) {
	prev := closeWait
	closeWait = 20 * time.Millisecond
	t.Cleanup(func() { closeWait = prev })

	dir := t.TempDir()
	ctx := context.Background()
	s, err := Open(dir)
	require.NoError(t, err)

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	row, err := tx.CreateEntity(ctx, "Person", types.Properties{})
	require.NoError(t, err)

	require.NoError(t, s.Close())
	assert.ErrorIs(t, tx.Commit(), types.ErrStorageUnavailable)
	require.NoError(t, tx.Rollback())

	s2, err := Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s2.Close() })
	tx2, err := s2.Begin(ctx)
	require.NoError(t, err)
	defer tx2.Rollback()
	_, err = tx2.GetEntity(ctx, row.ID)
	assert.ErrorIs(t, err, types.ErrEntityNotFound)
}

func TestQueryNativeOrderIsInsertionOrder(t *testing.T) {
	s := New()
	ctx := context.Background()
	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback()

	var want []string
	for i := 0; i < 5; i++ {
		row, err := tx.CreateEntity(ctx, "Person", types.Properties{"n": types.Int(int64(i))})
		require.NoError(t, err)
		want = append(want, row.ID)
	}
	rows, err := tx.ExecuteQuery(ctx, types.BackendQuery{EntityType: "Person", Limit: types.NoLimit})
	require.NoError(t, err)
	var got []string
	for _, r := range rows {
		got = append(got, r.ID)
	}
	assert.Equal(t, want, got)
}

func TestSnapshotSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	s, err := Open(dir)
	require.NoError(t, err)

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.SaveEntityType(ctx, types.EntityType{
		Name:       "Person",
		Properties: types.NewPropertySchema(types.Prop("name", types.PropertyString, true), types.Prop("age", types.PropertyInteger, false)),
	}))
	alice, err := tx.CreateEntity(ctx, "Person", types.Properties{"name": types.String("Alice"), "age": types.Int(30)})
	require.NoError(t, err)
	bob, err := tx.CreateEntity(ctx, "Person", types.Properties{"name": types.String("Bob")})
	require.NoError(t, err)
	rel, err := tx.CreateRelation(ctx, "KNOWS", alice.ID, bob.ID, types.Properties{"since": types.Int(2020)})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	require.NoError(t, s.Close())

	s2, err := Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s2.Close() })

	ents, _, err := s2.LoadTypes(ctx)
	require.NoError(t, err)
	require.Len(t, ents, 1)
	assert.Equal(t, []string{"name", "age"}, ents[0].Properties.Names())

	tx2, err := s2.Begin(ctx)
	require.NoError(t, err)
	defer tx2.Rollback()
	got, err := tx2.GetEntity(ctx, alice.ID)
	require.NoError(t, err)
	props, err := types.PropertiesFromAny(got.Properties)
	require.NoError(t, err)
	assert.True(t, props.Equal(types.Properties{"name": types.String("Alice"), "age": types.Int(30)}), "got %v", got.Properties)
	assert.True(t, got.CreatedAt.Equal(alice.CreatedAt))

	gotRel, err := tx2.GetRelation(ctx, rel.ID)
	require.NoError(t, err)
	assert.Equal(t, bob.ID, gotRel.ToID)

	rows, err := tx2.ExecuteQuery(ctx, types.BackendQuery{EntityType: "Person", Limit: types.NoLimit})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, alice.ID, rows[0].ID, "insertion order survives")
}

func TestSnapshotSkipsMalformedLines(t *testing.T) {
	dir := t.TempDir()
	lines := "{\"id\":\"e1\",\"entity_type\":\"Person\",\"properties\":{}}\nnot json\n\n" +
		"{\"id\":\"e2\",\"entity_type\":\"Person\",\"properties\":{}}\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, EntitiesFile), []byte(lines), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, RelationsFile),
		[]byte("{\"id\":\"r1\",\"relation_type\":\"KNOWS\",\"from_entity\":\"e1\",\"to_entity\":\"missing\"}\n"), 0o644))

	s, err := Open(dir)
	require.NoError(t, err)
	ctx := context.Background()
	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	rows, err := tx.ExecuteQuery(ctx, types.BackendQuery{EntityType: "Person", Limit: types.NoLimit})
	require.NoError(t, err)
	assert.Len(t, rows, 2)
	_, err = tx.GetRelation(ctx, "r1")
	assert.ErrorIs(t, err, types.ErrRelationNotFound, "dangling relation is dropped")
	require.NoError(t, tx.Rollback())
	require.NoError(t, s.Close())
}

func TestInMemoryStoreWritesNoSnapshot(t *testing.T) {
	s := New()
	assert.Empty(t, s.DataDir())
	require.NoError(t, s.Close())
}
