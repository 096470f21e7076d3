// Package txn implements the transaction builder (spec §4.C): a caller
// stages one or more recipes against one or more stores, binds a
// remote side-effect, and commits the whole thing as one Mutation.
package txn

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/mattsp1290/optimistic-engine/internal/idgen"
	"github.com/mattsp1290/optimistic-engine/internal/logging"
	"github.com/mattsp1290/optimistic-engine/pkg/memstore"
	"github.com/mattsp1290/optimistic-engine/pkg/mutation"
	"github.com/mattsp1290/optimistic-engine/pkg/patch"
)

// Submitter is the subset of the mutation queue a transaction needs:
// handing over a freshly committed mutation. package queue's Queue
// implements this.
type Submitter interface {
	Enqueue(*mutation.Mutation)
}

// SetOption configures a single set() call.
type SetOption func(*setOptions)

type setOptions struct {
	flush bool
}

// WithFlush controls whether this stage's result is written through to
// its store immediately (the default, flush=true) or held as working
// state until commit (flush=false) so several recipes can be composed
// on one store before anything downstream observes an intermediate
// value. See spec §4.C.
func WithFlush(flush bool) SetOption {
	return func(o *setOptions) { o.flush = flush }
}

type stage struct {
	store   memstore.Store
	origin  map[string]interface{} // store's value when this stage was opened
	working map[string]interface{}
	forward patch.Patches
	inverse patch.Patches
	synced  bool // true once `working` has been written through to store
}

// Transaction accumulates staged writes and a bound remote function,
// then converts them into one Mutation on Commit.
type Transaction struct {
	mu           sync.Mutex
	label        string
	defaultStore memstore.Store
	queue        Submitter
	ids          *idgen.Generator
	log          logging.Logger
	maxRetries   int

	remote mutation.Remote
	closed bool

	order  []memstore.Store
	stages map[memstore.Store]*stage
}

// New constructs a Transaction. defaultStore may be nil; calling
// Set (the no-store overload) on such a transaction fails with
// ErrNoDefaultStore.
func New(label string, defaultStore memstore.Store, queue Submitter, ids *idgen.Generator, log logging.Logger, maxRetries int) *Transaction {
	if log == nil {
		log = logging.NoOp()
	}
	return &Transaction{
		label:        label,
		defaultStore: defaultStore,
		queue:        queue,
		ids:          ids,
		log:          log,
		maxRetries:   maxRetries,
		stages:       make(map[memstore.Store]*stage),
	}
}

// Set applies recipe to the transaction's default store.
func (t *Transaction) Set(recipe patch.Recipe, opts ...SetOption) error {
	if t.defaultStore == nil {
		return ErrNoDefaultStore
	}
	return t.SetStore(t.defaultStore, recipe, opts...)
}

// SetStore applies recipe to store.
func (t *Transaction) SetStore(store memstore.Store, recipe patch.Recipe, opts ...SetOption) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrClosedTransaction
	}

	o := setOptions{flush: true}
	for _, opt := range opts {
		opt(&o)
	}

	st, ok := t.stages[store]
	if !ok {
		origin := store.Read()
		st = &stage{store: store, origin: origin, working: origin}
		t.stages[store] = st
		t.order = append(t.order, store)
	}

	next, fwd, inv := patch.ProduceWithPatches(st.working, recipe)
	if len(fwd) == 0 {
		// Dropped: an empty recipe never becomes part of the mutation.
		return nil
	}

	st.working = next
	st.forward = append(st.forward, fwd...)
	st.inverse = append(append(patch.Patches{}, inv...), st.inverse...)
	st.synced = false

	if o.flush {
		store.Write(next)
		st.synced = true
	}

	return nil
}

// AssignMutation binds the remote side-effect dispatched once this
// transaction's mutation reaches the queue.
func (t *Transaction) AssignMutation(remote mutation.Remote) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.remote = remote
}

// Commit flushes any deferred stages, merges per-store patches in
// stage order, constructs the mutation record, and hands it to the
// queue. A second Commit call is a no-op (logged, not errored); every
// other misuse returns a sentinel error synchronously.
func (t *Transaction) Commit() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		t.log.Warn("transaction: commit called twice, ignoring", logging.String("label", t.label))
		return nil
	}

	if len(t.order) == 0 {
		return ErrEmptyTransaction
	}
	if t.remote == nil {
		return ErrNoMutation
	}

	storePatches := make(map[memstore.Store]mutation.Delta, len(t.order))
	affected := make(map[string]struct{})

	for _, store := range t.order {
		st := t.stages[store]
		if len(st.forward) == 0 {
			continue
		}

		originJSON, err := json.Marshal(st.origin)
		if err != nil {
			return fmt.Errorf("transaction: marshal origin snapshot for wire validation: %w", err)
		}
		if _, err := patch.ValidateWireFormat(st.forward, originJSON); err != nil {
			return fmt.Errorf("transaction: forward patches failed wire-format validation: %w", err)
		}

		if !st.synced {
			// Reconcile against whatever the store holds right now —
			// another mutation may have written to it since this
			// stage was staged — rather than stomping it with the
			// (possibly stale) working value directly.
			current := store.Read()
			reconciled, err := patch.Apply(current, st.forward)
			if err != nil {
				return err
			}
			if m, ok := reconciled.(map[string]interface{}); ok {
				store.Write(m)
			}
		}

		storePatches[store] = mutation.Delta{Forward: st.forward, Inverse: st.inverse}
		for p := range patch.AffectedPaths(st.forward) {
			affected[p] = struct{}{}
		}
	}

	if len(storePatches) == 0 {
		return ErrEmptyTransaction
	}

	m := &mutation.Mutation{
		ID:            t.ids.Next(),
		CorrelationID: uuid.New().String(),
		CreatedAt:     t.ids.Now(),
		Label:         t.label,
		Status:        mutation.Pending,
		StorePatches:  storePatches,
		AffectedPaths: affected,
		Remote:        t.remote,
		MaxRetries:    t.maxRetries,
	}

	t.closed = true
	t.queue.Enqueue(m)
	return nil
}
