// Package memstore provides the minimal Store adapter the mutation
// engine builds on: read the current value, write a whole new value,
// or derive (nextValue, patches, inversePatches) from a recipe in one
// atomic step. It is the Go analogue of the teacher's StateStore
// (ag-ui go-sdk, pkg/state/store.go), trimmed to the three primitives
// the engine actually needs — versioned history, subscriptions, and
// snapshotting stay the queue's and the observability layer's concern,
// not the store's.
package memstore

import (
	"sync"

	"github.com/mattsp1290/optimistic-engine/pkg/patch"
)

// Store abstracts one mutable state container. Implementations are
// compared by identity (pointer equality), which is what the mutation
// queue uses to key per-store deltas inside a single mutation — two
// Store values wrapping the same underlying data are NOT
// interchangeable unless they are the same Go pointer.
type Store interface {
	// Read returns the store's current value. The returned value must
	// not be mutated by the caller.
	Read() map[string]interface{}

	// Write replaces the store's value outright.
	Write(next map[string]interface{})

	// Produce runs recipe against the current value and atomically
	// installs the result, returning the forward and inverse patches
	// that describe the edit. Produce is atomic with respect to
	// concurrent Read/Write/Produce calls on the same store.
	Produce(recipe patch.Recipe) (forward, inverse patch.Patches)
}

// Memory is an in-process Store guarded by a mutex. It is the only
// concrete adapter this module ships; a caller backing a reactive view
// model (out of scope per the engine's external-collaborators
// boundary) implements the same three-method interface over its own
// container instead.
type Memory struct {
	mu    sync.Mutex
	value map[string]interface{}
}

// New creates a Memory store seeded with initial. Only the top level of
// initial is copied: adding or removing keys in the caller's map later
// does not reach the store, but nested maps and slices are shared.
func New(initial map[string]interface{}) *Memory {
	return &Memory{value: cloneShallow(initial)}
}

func (m *Memory) Read() map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.value
}

func (m *Memory) Write(next map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.value = next
}

func (m *Memory) Produce(recipe patch.Recipe) (forward, inverse patch.Patches) {
	m.mu.Lock()
	defer m.mu.Unlock()
	next, fwd, inv := patch.ProduceWithPatches(m.value, recipe)
	m.value = next
	return fwd, inv
}

func cloneShallow(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return map[string]interface{}{}
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
