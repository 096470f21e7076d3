package patch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleState() map[string]interface{} {
	return map[string]interface{}{
		"tasks": map[string]interface{}{
			"t1": map[string]interface{}{"title": "A", "status": "todo"},
		},
	}
}

func TestProduceWithPatches_RenameField(t *testing.T) {
	base := sampleState()
	next, forward, inverse := ProduceWithPatches(base, func(d map[string]interface{}) {
		tasks := d["tasks"].(map[string]interface{})
		t1 := tasks["t1"].(map[string]interface{})
		t1["title"] = "B"
	})

	require.NotEmpty(t, forward)
	require.NotEmpty(t, inverse)

	nextTasks := next["tasks"].(map[string]interface{})
	nextT1 := nextTasks["t1"].(map[string]interface{})
	assert.Equal(t, "B", nextT1["title"])
	assert.Equal(t, "todo", nextT1["status"], "unrelated field must survive")

	baseTasks := base["tasks"].(map[string]interface{})
	baseT1 := baseTasks["t1"].(map[string]interface{})
	assert.Equal(t, "A", baseT1["title"], "base must be untouched")
}

func TestProduceWithPatches_EmptyRecipeIsIdentity(t *testing.T) {
	base := sampleState()
	next, forward, inverse := ProduceWithPatches(base, func(d map[string]interface{}) {
		// no-op
	})
	assert.Empty(t, forward)
	assert.Empty(t, inverse)

	baseTasks := base["tasks"]
	nextTasks := next["tasks"]
	assert.True(t, samePointer(baseTasks, nextTasks), "untouched subtree must be structurally shared")
}

func samePointer(a, b interface{}) bool {
	am, aok := a.(map[string]interface{})
	bm, bok := b.(map[string]interface{})
	if !aok || !bok {
		return false
	}
	// Reflect-free identity check: mutate through one, observe via the other.
	for k := range am {
		_ = k
		break
	}
	am["__probe__"] = true
	_, seen := bm["__probe__"]
	delete(am, "__probe__")
	return seen
}

func TestApplyThenUnapplyIsIdempotent(t *testing.T) {
	base := sampleState()
	next, forward, inverse := ProduceWithPatches(base, func(d map[string]interface{}) {
		d["tasks"].(map[string]interface{})["t2"] = map[string]interface{}{"title": "C", "status": "todo"}
	})

	applied, err := Apply(base, forward)
	require.NoError(t, err)
	assert.Equal(t, next, applied)

	restored, err := Apply(applied, inverse)
	require.NoError(t, err)
	assert.Equal(t, base, restored)
}

func TestApply_RemoveMissingPathFails(t *testing.T) {
	base := sampleState()
	_, err := Apply(base, Patches{{Op: OpRemove, Path: Pointer{"tasks", "missing"}}})
	require.Error(t, err)
	var applyErr *ApplyError
	require.ErrorAs(t, err, &applyErr)
}

func TestAffectedPaths_DepthCap(t *testing.T) {
	paths := AffectedPaths(Patches{
		{Op: OpReplace, Path: Pointer{"tasks", "t1", "title"}},
	})
	_, ok := paths["tasks.t1"]
	assert.True(t, ok)
	assert.Len(t, paths, 1)
}

func TestConflictsWith(t *testing.T) {
	a := AffectedPaths(Patches{{Op: OpReplace, Path: Pointer{"tasks", "t1", "title"}}})
	b := AffectedPaths(Patches{{Op: OpReplace, Path: Pointer{"tasks", "t1", "status"}}})
	assert.True(t, ConflictsWith(a, b), "same entity, different field still conflicts")

	c := AffectedPaths(Patches{{Op: OpReplace, Path: Pointer{"tasks", "t2", "title"}}})
	assert.False(t, ConflictsWith(a, c), "different entities do not conflict")

	d := AffectedPaths(Patches{{Op: OpRemove, Path: Pointer{"tasks"}}})
	assert.True(t, ConflictsWith(a, d), "prefix of a path conflicts with the full path")
}

func TestPointerString(t *testing.T) {
	assert.Equal(t, "/tasks/t1/title", Pointer{"tasks", "t1", "title"}.String())
	assert.Equal(t, "", Pointer{}.String())
	assert.Equal(t, "/a~1b/c~0d", Pointer{"a/b", "c~d"}.String())
}
