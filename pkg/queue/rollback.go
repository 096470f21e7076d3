package queue

import (
	"context"
	"sort"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/mattsp1290/optimistic-engine/internal/logging"
	"github.com/mattsp1290/optimistic-engine/pkg/memstore"
	"github.com/mattsp1290/optimistic-engine/pkg/mutation"
	"github.com/mattsp1290/optimistic-engine/pkg/patch"
)

// rollback performs the full-rebase algorithm from spec §4.D step 3
// once failed has exhausted its retries: every store failed touches is
// rewound past every live mutation's patches (newest first) back to a
// shared base, then every surviving mutation's forward patches are
// replayed on top of that base (oldest first) with failed itself
// excluded. A survivor whose replay no longer applies — because it was
// never independent of failed in the first place — is cascaded into
// RolledBack too (spec §7's dependent-failure case), reported through
// DependentRollbackError.
//
// A mutation can touch more than one store, so excluding it from one
// store's replay can change what another store's replay must also
// exclude (a mutation that touches both is only a true survivor if it
// redoes cleanly everywhere). detectFailures iterates to a fixed point
// across every touched store before anything is written, so the final
// commit pass never depends on map iteration order.
func (q *Queue) rollback(failed *mutation.Mutation, cause error) {
	_, span := q.tracer.Start(context.Background(), "mutation.rollback",
		trace.WithAttributes(
			attribute.Int64("mutation.id", int64(failed.ID)),
			attribute.String("mutation.correlation_id", failed.CorrelationID),
		))
	defer span.End()

	storeSet, affected := q.affectedStoreClosure(failed)

	excluded := map[uint64]bool{failed.ID: true}
	q.detectFailures(storeSet, affected, excluded)
	q.commitRollback(storeSet, affected, excluded)
	q.finalizeRollback(affected, excluded, failed, cause)
}

// affectedStoreClosure computes S per spec §4.D step 2: the union of
// stores touched by failed and by every mutation in R, where R is
// itself defined in terms of S — a mutation that shares a store with
// failed can itself touch a second store no other affected mutation
// has touched yet, and that second store's own writers must join S
// too. The closure grows storeSet and re-scans live mutations against
// it until a full pass adds nothing new.
func (q *Queue) affectedStoreClosure(failed *mutation.Mutation) (map[memstore.Store]struct{}, []*mutation.Mutation) {
	storeSet := make(map[memstore.Store]struct{}, len(failed.StorePatches))
	for s := range failed.StorePatches {
		storeSet[s] = struct{}{}
	}

	for {
		grew := false
		for _, cand := range q.live {
			if !q.touchesAny(cand, storeSet) {
				continue
			}
			for s := range cand.StorePatches {
				if _, ok := storeSet[s]; !ok {
					storeSet[s] = struct{}{}
					grew = true
				}
			}
		}
		if !grew {
			break
		}
	}

	return storeSet, q.affectedLive(storeSet)
}

func (q *Queue) touchesAny(m *mutation.Mutation, storeSet map[memstore.Store]struct{}) bool {
	for s := range m.StorePatches {
		if _, ok := storeSet[s]; ok {
			return true
		}
	}
	return false
}

// affectedLive returns every live mutation (failed included) that
// writes to at least one store in storeSet.
func (q *Queue) affectedLive(storeSet map[memstore.Store]struct{}) []*mutation.Mutation {
	var out []*mutation.Mutation
	for _, cand := range q.live {
		if q.touchesAny(cand, storeSet) {
			out = append(out, cand)
		}
	}
	return out
}

// detectFailures grows excluded until a full pass over every touched
// store adds nothing new. It never calls Write — replay happens on
// scratch values only, so the real stores stay untouched until
// commitRollback.
func (q *Queue) detectFailures(storeSet map[memstore.Store]struct{}, affected []*mutation.Mutation, excluded map[uint64]bool) {
	for {
		grew := false
		for s := range storeSet {
			base := q.undoBase(s, affected)
			_, newlyFailed := q.redoSurvivors(s, base, affected, excluded)
			for id := range newlyFailed {
				if !excluded[id] {
					excluded[id] = true
					grew = true
				}
			}
		}
		if !grew {
			return
		}
	}
}

// commitRollback recomputes each store's final value from the
// converged exclusion set and writes it through.
func (q *Queue) commitRollback(storeSet map[memstore.Store]struct{}, affected []*mutation.Mutation, excluded map[uint64]bool) {
	for s := range storeSet {
		base := q.undoBase(s, affected)
		final, _ := q.redoSurvivors(s, base, affected, excluded)
		if m, ok := final.(map[string]interface{}); ok {
			s.Write(m)
		}
	}
}

// undoBase rewinds s past every affected mutation's inverse patches,
// newest mutation first, regardless of exclusion — every affected
// mutation was actually applied to the live store at some point, so
// all of them must be undone before any replay can start.
func (q *Queue) undoBase(s memstore.Store, affected []*mutation.Mutation) interface{} {
	ordered := affectedForStore(s, affected)
	sortDescendingByTime(ordered)

	var cur interface{} = s.Read()
	for _, cand := range ordered {
		delta := cand.StorePatches[s]
		next, err := patch.Apply(cur, delta.Inverse)
		if err != nil {
			// An inverse patch failing to apply means the store's live
			// value already diverged from what this mutation recorded;
			// there is nothing safer to do than keep going from the
			// last value we could compute.
			q.log.Error("rollback: inverse patch failed to apply",
				logging.Uint64("mutation", cand.ID), logging.Err(err))
			continue
		}
		cur = next
	}
	return cur
}

// redoSurvivors replays every non-excluded affected mutation's forward
// patches for store s, oldest first, starting from base. Mutations
// whose replay fails are returned in newlyFailed and are not applied.
func (q *Queue) redoSurvivors(s memstore.Store, base interface{}, affected []*mutation.Mutation, excluded map[uint64]bool) (interface{}, map[uint64]bool) {
	ordered := affectedForStore(s, affected)
	sortAscendingByTime(ordered)

	newlyFailed := make(map[uint64]bool)
	cur := base
	for _, cand := range ordered {
		if excluded[cand.ID] {
			continue
		}
		delta := cand.StorePatches[s]
		next, err := patch.Apply(cur, delta.Forward)
		if err != nil {
			newlyFailed[cand.ID] = true
			continue
		}
		cur = next
	}
	return cur, newlyFailed
}

func affectedForStore(s memstore.Store, affected []*mutation.Mutation) []*mutation.Mutation {
	out := make([]*mutation.Mutation, 0, len(affected))
	for _, cand := range affected {
		if _, ok := cand.StorePatches[s]; ok {
			out = append(out, cand)
		}
	}
	return out
}

func sortAscendingByTime(ms []*mutation.Mutation) {
	sort.SliceStable(ms, func(i, j int) bool {
		return ms[i].CreatedAt.Before(ms[j].CreatedAt)
	})
}

// finalizeRollback retires every mutation the fixed point excluded:
// failed itself reports cause directly, every dependent cascade
// reports a DependentRollbackError wrapping it (spec §7).
func (q *Queue) finalizeRollback(affected []*mutation.Mutation, excluded map[uint64]bool, failed *mutation.Mutation, cause error) {
	for _, cand := range affected {
		if !excluded[cand.ID] {
			continue
		}
		cand.Status = mutation.RolledBack
		q.removeLive(cand.ID)

		var reportErr error
		if cand.ID == failed.ID {
			reportErr = cause
		} else {
			reportErr = &DependentRollbackError{MutationID: cand.ID, Cause: cause}
		}

		q.appendHistory(cand.ToSnapshot())
		q.metrics.incRolledBack()
		q.metrics.observeRetirement(cand.CreatedAt)
		if q.onErr != nil {
			q.onErr(cand.ToSnapshot(), reportErr)
		}
	}
}
