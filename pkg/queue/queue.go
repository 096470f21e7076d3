// Package queue owns the timeline of pending/in-flight mutations: it
// schedules their remote side-effects concurrently, performs the
// cross-store rollback/rebase on terminal failure, and emits
// observable snapshots (spec §4.D). Every exported method is safe to
// call from any goroutine; internally, all queue and store mutation
// happens on one "turn loop" goroutine, which is what makes the
// concurrent-dispatch, single-threaded-cooperative guarantee in spec
// §5 hold — the same request/reply-over-a-channel idiom the teacher
// uses for its update queue (ag-ui go-sdk, pkg/state/manager.go).
package queue

import (
	"context"
	"sort"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/mattsp1290/optimistic-engine/internal/logging"
	"github.com/mattsp1290/optimistic-engine/pkg/mutation"
)

const defaultHistoryLimit = 20

// Observer receives every queue state change as the concatenation of
// live snapshots (enqueue order) and history snapshots (newest-first).
// Implementations must not mutate the slice's elements; the queue never
// reuses a Snapshot value across calls.
type Observer func(snapshots []mutation.Snapshot)

// Options configures a Queue. The zero value caps history at 20. Retry
// budgets are not set here: each Mutation carries its own MaxRetries.
type Options struct {
	HistoryLimit    int
	Logger          logging.Logger
	Metrics         *Metrics
	Tracer          trace.Tracer
	OnQueueChange   Observer
	OnMutationOK    func(mutation.Snapshot)
	OnMutationError func(mutation.Snapshot, error)
}

// Queue implements the mutation lifecycle, scheduling, retry and
// rollback/rebase described in spec §4.D.
type Queue struct {
	cmds     chan func()
	stopWg   sync.WaitGroup
	dispatch errgroup.Group

	live       []*mutation.Mutation
	inFlight   map[uint64]bool
	history    []mutation.Snapshot
	historyCap int

	log        logging.Logger
	metrics    *Metrics
	tracer     trace.Tracer

	onChange  Observer
	onOK      func(mutation.Snapshot)
	onErr     func(mutation.Snapshot, error)
}

// New starts a Queue's turn loop and returns it ready to use.
func New(opts Options) *Queue {
	if opts.Logger == nil {
		opts.Logger = logging.NoOp()
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = defaultHistoryLimit
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer("github.com/mattsp1290/optimistic-engine/pkg/queue")
	}

	q := &Queue{
		cmds:       make(chan func()),
		inFlight:   make(map[uint64]bool),
		historyCap: opts.HistoryLimit,
		log:        opts.Logger,
		metrics:    opts.Metrics,
		tracer:     opts.Tracer,
		onChange:   opts.OnQueueChange,
		onOK:       opts.OnMutationOK,
		onErr:      opts.OnMutationError,
	}

	q.stopWg.Add(1)
	go q.run()
	return q
}

func (q *Queue) run() {
	defer q.stopWg.Done()
	for cmd := range q.cmds {
		cmd()
	}
}

// Close stops the turn loop. It first waits for every in-flight
// dispatch goroutine to finish its remote call and hand its result back
// through do — otherwise a goroutine resolving after cmds is closed
// would send on a closed channel and panic. Close is for test/process
// teardown, not part of the spec's public surface.
func (q *Queue) Close() {
	q.dispatch.Wait()
	close(q.cmds)
	q.stopWg.Wait()
}

// do runs fn on the turn loop and blocks until it has completed. Every
// exported method is built on top of this, which is what serializes
// otherwise-concurrent callers into one cooperative stream of
// transitions.
func (q *Queue) do(fn func()) {
	done := make(chan struct{})
	q.cmds <- func() {
		fn()
		close(done)
	}
	<-done
}

// Enqueue hands a freshly committed mutation to the queue: it joins
// the live set in this call's position (enqueue order defines the
// ordering guarantee from spec §5), and dispatch is considered for
// every pending mutation before Enqueue returns.
func (q *Queue) Enqueue(m *mutation.Mutation) {
	q.do(func() {
		q.live = append(q.live, m)
		q.metrics.incEnqueued()
		q.log.Info("mutation enqueued",
			logging.Uint64("id", m.ID), logging.String("label", m.Label), logging.String("correlation_id", m.CorrelationID))
		q.dispatchPending()
		q.notifyLocked()
	})
}

// HasPending reports whether any live mutation is still pending
// dispatch (not yet in flight).
func (q *Queue) HasPending() bool {
	var has bool
	q.do(func() {
		for _, m := range q.live {
			if m.Status == mutation.Pending {
				has = true
				return
			}
		}
	})
	return has
}

// Clear empties both the live queue and history and forgets all
// in-flight markers. Remote functions already awaiting the wire keep
// running; their eventual resolution is ignored because their
// mutation id is no longer tracked.
func (q *Queue) Clear() {
	q.do(func() {
		q.live = nil
		q.history = nil
		q.inFlight = make(map[uint64]bool)
		q.notifyLocked()
	})
}

// Snapshot returns the current concatenation of live (enqueue order)
// and history (newest-first) snapshots — the same payload every
// Observer call receives.
func (q *Queue) Snapshot() []mutation.Snapshot {
	var out []mutation.Snapshot
	q.do(func() {
		out = q.snapshotsLocked()
	})
	return out
}

func (q *Queue) snapshotsLocked() []mutation.Snapshot {
	out := make([]mutation.Snapshot, 0, len(q.live)+len(q.history))
	for _, m := range q.live {
		out = append(out, m.ToSnapshot())
	}
	out = append(out, q.history...)
	return out
}

func (q *Queue) notifyLocked() {
	q.metrics.setLiveDepth(len(q.live))
	if q.onChange != nil {
		q.onChange(q.snapshotsLocked())
	}
}

// dispatchPending starts every live, pending, not-already-in-flight
// mutation. Called on enqueue and after every terminal transition —
// never mid-rollback, since rollback runs entirely inside one turn.
func (q *Queue) dispatchPending() {
	for _, m := range q.live {
		if m.Status != mutation.Pending || q.inFlight[m.ID] {
			continue
		}
		q.startDispatch(m)
	}
}

func (q *Queue) startDispatch(m *mutation.Mutation) {
	m.Status = mutation.InFlight
	q.inFlight[m.ID] = true
	q.metrics.incDispatched()

	_, span := q.tracer.Start(context.Background(), "mutation.dispatch",
		trace.WithAttributes(
			attribute.Int64("mutation.id", int64(m.ID)),
			attribute.String("mutation.correlation_id", m.CorrelationID),
		))

	q.dispatch.Go(func() error {
		defer span.End()
		err := m.Remote()
		q.do(func() {
			q.handleResult(m, err)
		})
		return nil
	})
}

func (q *Queue) handleResult(m *mutation.Mutation, err error) {
	if !q.isLive(m.ID) {
		// Late resolution of a mutation already swept away by Clear or
		// a dependent rollback cascade: explicitly ignored per spec §9.
		return
	}
	delete(q.inFlight, m.ID)

	if err == nil {
		m.Status = mutation.Success
		q.retire(m)
		q.metrics.incSucceeded()
		if q.onOK != nil {
			q.onOK(m.ToSnapshot())
		}
		q.dispatchPending()
		q.notifyLocked()
		return
	}

	m.RetryCount++
	if m.RetryCount <= m.MaxRetries {
		m.Status = mutation.Pending
		q.metrics.incRetried()
		q.log.Warn("mutation rejected, retrying",
			logging.Uint64("id", m.ID), logging.Int("retry", m.RetryCount), logging.Err(err))
		q.dispatchPending()
		q.notifyLocked()
		return
	}

	m.Status = mutation.Failed
	q.log.Error("mutation failed, rolling back", logging.Uint64("id", m.ID), logging.Err(err))
	q.rollback(m, err)
	q.dispatchPending()
	q.notifyLocked()
}

func (q *Queue) isLive(id uint64) bool {
	for _, m := range q.live {
		if m.ID == id {
			return true
		}
	}
	return false
}

func (q *Queue) removeLive(id uint64) {
	out := q.live[:0]
	for _, m := range q.live {
		if m.ID != id {
			out = append(out, m)
		}
	}
	q.live = out
}

func (q *Queue) retire(m *mutation.Mutation) {
	q.removeLive(m.ID)
	q.appendHistory(m.ToSnapshot())
	q.metrics.observeRetirement(m.CreatedAt)
}

func (q *Queue) appendHistory(s mutation.Snapshot) {
	q.history = append([]mutation.Snapshot{s}, q.history...)
	if len(q.history) > q.historyCap {
		q.history = q.history[:q.historyCap]
	}
}

// sortDescendingByTime sorts ms newest-first in place; in the
// (practically impossible, since timestamps are generated strictly
// monotonically) case of equal timestamps, entries keep their input order.
func sortDescendingByTime(ms []*mutation.Mutation) {
	sort.SliceStable(ms, func(i, j int) bool {
		return ms[i].CreatedAt.After(ms[j].CreatedAt)
	})
}
