package txn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattsp1290/optimistic-engine/internal/idgen"
	"github.com/mattsp1290/optimistic-engine/pkg/memstore"
	"github.com/mattsp1290/optimistic-engine/pkg/mutation"
)

type fakeQueue struct {
	enqueued []*mutation.Mutation
}

func (f *fakeQueue) Enqueue(m *mutation.Mutation) {
	f.enqueued = append(f.enqueued, m)
}

func newStore() *memstore.Memory {
	return memstore.New(map[string]interface{}{
		"tasks": map[string]interface{}{
			"t1": map[string]interface{}{"title": "A", "status": "todo"},
		},
	})
}

func TestTransaction_SetDefaultStoreAndCommit(t *testing.T) {
	store := newStore()
	q := &fakeQueue{}
	ids := &idgen.Generator{}

	tx := New("rename", store, q, ids, nil, 0)
	require.NoError(t, tx.Set(func(d map[string]interface{}) {
		d["tasks"].(map[string]interface{})["t1"].(map[string]interface{})["title"] = "B"
	}))
	tx.AssignMutation(func() error { return nil })
	require.NoError(t, tx.Commit())

	require.Len(t, q.enqueued, 1)
	m := q.enqueued[0]
	assert.Equal(t, mutation.Pending, m.Status)
	assert.Contains(t, m.AffectedPaths, "tasks.t1")
	assert.NotEmpty(t, m.CorrelationID)

	got := store.Read()
	title := got["tasks"].(map[string]interface{})["t1"].(map[string]interface{})["title"]
	assert.Equal(t, "B", title)
}

func TestTransaction_NoDefaultStore(t *testing.T) {
	q := &fakeQueue{}
	ids := &idgen.Generator{}
	tx := New("x", nil, q, ids, nil, 0)
	err := tx.Set(func(map[string]interface{}) {})
	assert.ErrorIs(t, err, ErrNoDefaultStore)
}

func TestTransaction_SetAfterCommit(t *testing.T) {
	store := newStore()
	q := &fakeQueue{}
	ids := &idgen.Generator{}
	tx := New("x", store, q, ids, nil, 0)
	require.NoError(t, tx.Set(func(d map[string]interface{}) {
		d["tasks"].(map[string]interface{})["t1"].(map[string]interface{})["title"] = "B"
	}))
	tx.AssignMutation(func() error { return nil })
	require.NoError(t, tx.Commit())

	err := tx.Set(func(map[string]interface{}) {})
	assert.ErrorIs(t, err, ErrClosedTransaction)
}

func TestTransaction_EmptyCommit(t *testing.T) {
	store := newStore()
	q := &fakeQueue{}
	ids := &idgen.Generator{}
	tx := New("x", store, q, ids, nil, 0)
	tx.AssignMutation(func() error { return nil })
	err := tx.Commit()
	assert.ErrorIs(t, err, ErrEmptyTransaction)
}

func TestTransaction_NoRemoteFunction(t *testing.T) {
	store := newStore()
	q := &fakeQueue{}
	ids := &idgen.Generator{}
	tx := New("x", store, q, ids, nil, 0)
	require.NoError(t, tx.Set(func(d map[string]interface{}) {
		d["tasks"].(map[string]interface{})["t1"].(map[string]interface{})["title"] = "B"
	}))
	err := tx.Commit()
	assert.ErrorIs(t, err, ErrNoMutation)
}

func TestTransaction_EmptyRecipeDropped(t *testing.T) {
	store := newStore()
	q := &fakeQueue{}
	ids := &idgen.Generator{}
	tx := New("x", store, q, ids, nil, 0)
	require.NoError(t, tx.Set(func(map[string]interface{}) {})) // no-op recipe
	tx.AssignMutation(func() error { return nil })
	err := tx.Commit()
	assert.ErrorIs(t, err, ErrEmptyTransaction)
}

func TestTransaction_ReCommitIsNoOp(t *testing.T) {
	store := newStore()
	q := &fakeQueue{}
	ids := &idgen.Generator{}
	tx := New("x", store, q, ids, nil, 0)
	require.NoError(t, tx.Set(func(d map[string]interface{}) {
		d["tasks"].(map[string]interface{})["t1"].(map[string]interface{})["title"] = "B"
	}))
	tx.AssignMutation(func() error { return nil })
	require.NoError(t, tx.Commit())
	require.NoError(t, tx.Commit()) // no-op, not an error
	assert.Len(t, q.enqueued, 1)
}

func TestTransaction_DeferredFlushComposesOnWorkingValue(t *testing.T) {
	store := newStore()
	q := &fakeQueue{}
	ids := &idgen.Generator{}
	tx := New("x", store, q, ids, nil, 0)

	require.NoError(t, tx.Set(func(d map[string]interface{}) {
		d["tasks"].(map[string]interface{})["t1"].(map[string]interface{})["title"] = "B"
	}, WithFlush(false)))

	// Store must not see the intermediate value yet.
	mid := store.Read()
	assert.Equal(t, "A", mid["tasks"].(map[string]interface{})["t1"].(map[string]interface{})["title"])

	require.NoError(t, tx.Set(func(d map[string]interface{}) {
		d["tasks"].(map[string]interface{})["t1"].(map[string]interface{})["status"] = "done"
	}, WithFlush(false)))

	tx.AssignMutation(func() error { return nil })
	require.NoError(t, tx.Commit())

	got := store.Read()
	t1 := got["tasks"].(map[string]interface{})["t1"].(map[string]interface{})
	assert.Equal(t, "B", t1["title"])
	assert.Equal(t, "done", t1["status"])
}

func TestTransaction_MultiStoreCommit(t *testing.T) {
	a := memstore.New(map[string]interface{}{"x": float64(0)})
	b := memstore.New(map[string]interface{}{"y": float64(0)})
	q := &fakeQueue{}
	ids := &idgen.Generator{}
	tx := New("cross-store", nil, q, ids, nil, 0)

	require.NoError(t, tx.SetStore(a, func(d map[string]interface{}) { d["x"] = float64(1) }))
	require.NoError(t, tx.SetStore(b, func(d map[string]interface{}) { d["y"] = float64(2) }))
	tx.AssignMutation(func() error { return nil })
	require.NoError(t, tx.Commit())

	m := q.enqueued[0]
	assert.Len(t, m.StorePatches, 2)
	assert.Equal(t, float64(1), a.Read()["x"])
	assert.Equal(t, float64(2), b.Read()["y"])
}
