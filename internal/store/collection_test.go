package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type doc struct {
	GameID string   `json:"game_id"`
	State  string   `json:"state"`
	Score  float64  `json:"score"`
	Tags   []string `json:"tags"`
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(filepath.Join(t.TempDir(), "store.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestInsertGetDuplicate(t *testing.T) {
	st := openTestStore(t)
	col := st.Collection(ColSignals)
	ctx := context.Background()

	require.NoError(t, col.Insert(ctx, "a", doc{GameID: "g1", State: "DISCOVERED"}))

	var out doc
	found, err := col.Get(ctx, "a", &out)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "g1", out.GameID)

	found, err = col.Get(ctx, "missing", &out)
	require.NoError(t, err)
	assert.False(t, found)

	assert.ErrorIs(t, col.Insert(ctx, "a", doc{GameID: "g2"}), ErrDuplicate)
}

func TestUpsertReplaces(t *testing.T) {
	st := openTestStore(t)
	col := st.Collection(ColRiskProfiles)
	ctx := context.Background()

	require.NoError(t, col.Upsert(ctx, "u1", doc{State: "old"}))
	require.NoError(t, col.Upsert(ctx, "u1", doc{State: "new"}))

	var out doc
	found, err := col.Get(ctx, "u1", &out)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "new", out.State)

	n, err := col.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestFindWithFilterOrderAndLimit(t *testing.T) {
	st := openTestStore(t)
	col := st.Collection(ColSignals)
	ctx := context.Background()

	require.NoError(t, col.Insert(ctx, "a", doc{GameID: "g1", State: "DISCOVERED", Score: 3}))
	require.NoError(t, col.Insert(ctx, "b", doc{GameID: "g1", State: "PUBLISHED", Score: 1}))
	require.NoError(t, col.Insert(ctx, "c", doc{GameID: "g1", State: "PUBLISHED", Score: 2}))
	require.NoError(t, col.Insert(ctx, "d", doc{GameID: "g2", State: "PUBLISHED", Score: 9}))

	rows, err := col.Find(ctx, FindOpts{
		Eq:      map[string]any{"game_id": "g1", "state": "PUBLISHED"},
		OrderBy: "score", Desc: true,
	})
	require.NoError(t, err)
	docs, err := DecodeAll[doc](rows)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, 2.0, docs[0].Score)
	assert.Equal(t, 1.0, docs[1].Score)

	rows, err = col.Find(ctx, FindOpts{OrderBy: "score", Limit: 2})
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	var one doc
	found, err := col.FindOne(ctx, "game_id", "g2", &one)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 9.0, one.Score)
}

func TestAppendToList(t *testing.T) {
	st := openTestStore(t)
	col := st.Collection(ColSignals)
	ctx := context.Background()

	require.NoError(t, col.Insert(ctx, "a", doc{GameID: "g1", Tags: []string{}}))
	require.NoError(t, col.AppendToList(ctx, "a", "tags", "first"))
	require.NoError(t, col.AppendToList(ctx, "a", "tags", "second"))

	var out doc
	found, err := col.Get(ctx, "a", &out)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []string{"first", "second"}, out.Tags)

	assert.Error(t, col.AppendToList(ctx, "missing", "tags", "x"))
}

func TestSetFieldsAndUnset(t *testing.T) {
	st := openTestStore(t)
	col := st.Collection(ColSignals)
	ctx := context.Background()

	require.NoError(t, col.Insert(ctx, "a", doc{GameID: "g1", State: "DISCOVERED", Score: 1}))
	require.NoError(t, col.SetFields(ctx, "a", map[string]any{"state": "PUBLISHED", "score": 4.5}))

	var out doc
	_, err := col.Get(ctx, "a", &out)
	require.NoError(t, err)
	assert.Equal(t, "PUBLISHED", out.State)
	assert.Equal(t, 4.5, out.Score)
	assert.Equal(t, "g1", out.GameID, "untouched fields survive a partial update")

	require.NoError(t, col.Unset(ctx, "a", "state"))
	out = doc{}
	_, err = col.Get(ctx, "a", &out)
	require.NoError(t, err)
	assert.Empty(t, out.State)

	assert.Error(t, col.SetFields(ctx, "missing", map[string]any{"state": "X"}))
}

func TestCollectionsAreIndependent(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.Collection(ColSignals).Insert(ctx, "a", doc{GameID: "g1"}))

	n, err := st.Collection(ColGrading).Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	var out doc
	found, err := st.Collection(ColGrading).Get(ctx, "a", &out)
	require.NoError(t, err)
	assert.False(t, found)
}
