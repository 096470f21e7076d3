// Package mutation defines the record the engine tracks through its
// pending/in-flight/terminal lifecycle, and the read-only snapshot
// projection observers receive. It has no behavior of its own: package
// queue owns the state machine, package txn builds the record.
package mutation

import (
	"time"

	"github.com/mattsp1290/optimistic-engine/pkg/memstore"
	"github.com/mattsp1290/optimistic-engine/pkg/patch"
)

// Status is a mutation's position in the lifecycle described in spec
// §4.D. It only ever moves forward; Pending can be re-entered from
// InFlight on a retry, Failed is only ever followed by RolledBack, and
// a mutation never leaves Success or RolledBack once reached.
type Status int

const (
	Pending Status = iota
	InFlight
	Success
	Failed
	RolledBack
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case InFlight:
		return "in-flight"
	case Success:
		return "success"
	case Failed:
		return "failed"
	case RolledBack:
		return "rolled-back"
	default:
		return "unknown"
	}
}

// Delta is one store's contribution to a mutation: the forward patches
// that were applied and the inverse patches that undo them.
type Delta struct {
	Forward patch.Patches
	Inverse patch.Patches
}

// Remote is the asynchronous side-effect a transaction binds. The
// engine treats a non-nil error as a terminal rejection and forwards
// it opaquely to the caller's error callback; it never inspects the
// error's type.
type Remote func() error

// Mutation is immutable once enqueued except for its Status and
// RetryCount. Every store key in StorePatches has at least one patch
// (invariant 3, enforced by txn.Transaction.Commit); the AffectedPaths
// set is the union of entity paths across all stores.
type Mutation struct {
	ID             uint64
	CorrelationID  string
	CreatedAt      time.Time
	Label          string
	Status         Status
	StorePatches   map[memstore.Store]Delta
	AffectedPaths  map[string]struct{}
	Remote         Remote
	RetryCount     int
	MaxRetries     int
}

// Snapshot is a read-only, reference-free projection of a Mutation for
// observers. Two snapshots of the same mutation at different times
// never share mutable state — each call to ToSnapshot allocates a fresh
// AffectedPaths slice.
type Snapshot struct {
	ID            uint64
	CorrelationID string
	CreatedAt     time.Time
	Label         string
	Status        Status
	PatchCount    int
	AffectedPaths []string
	RetryCount    int
	MaxRetries    int
}

// ToSnapshot projects m into an observer-safe snapshot.
func (m *Mutation) ToSnapshot() Snapshot {
	count := 0
	for _, d := range m.StorePatches {
		count += len(d.Forward)
	}
	paths := make([]string, 0, len(m.AffectedPaths))
	for p := range m.AffectedPaths {
		paths = append(paths, p)
	}
	return Snapshot{
		ID:            m.ID,
		CorrelationID: m.CorrelationID,
		CreatedAt:     m.CreatedAt,
		Label:         m.Label,
		Status:        m.Status,
		PatchCount:    count,
		AffectedPaths: paths,
		RetryCount:    m.RetryCount,
		MaxRetries:    m.MaxRetries,
	}
}

// Stores returns the set of stores this mutation touches, in no
// particular order — callers that need a deterministic order must sort
// (rollback does not: its fixed-point pass over stores gives the same
// result in any store order).
func (m *Mutation) Stores() []memstore.Store {
	out := make([]memstore.Store, 0, len(m.StorePatches))
	for s := range m.StorePatches {
		out = append(out, s)
	}
	return out
}
