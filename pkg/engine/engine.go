// Package engine wires the patch model, store adapter, transaction
// builder and mutation queue into the single external surface spec §6
// describes: createEngine/Engine/Transaction, plus the config and
// observability plumbing spec §4.E adds around them.
package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"

	"github.com/mattsp1290/optimistic-engine/internal/idgen"
	"github.com/mattsp1290/optimistic-engine/internal/logging"
	"github.com/mattsp1290/optimistic-engine/pkg/memstore"
	"github.com/mattsp1290/optimistic-engine/pkg/mutation"
	"github.com/mattsp1290/optimistic-engine/pkg/queue"
	"github.com/mattsp1290/optimistic-engine/pkg/txn"
)

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithLogger overrides the engine's structured logger. The default is
// a no-op logger, matching every other package in this module.
func WithLogger(log logging.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// WithTracer overrides the OpenTelemetry tracer the queue uses for its
// dispatch and rollback spans. The default is the global tracer named
// after package queue's import path.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

// WithPrometheusRegisterer registers the engine's queue metrics against
// reg instead of the default global registry. Pass nil to disable
// metrics entirely.
func WithPrometheusRegisterer(reg prometheus.Registerer) Option {
	return func(e *Engine) { e.registerer = reg; e.registererSet = true }
}

// WithObservers wires the caller's callbacks for every queue state
// change, mutation success, and mutation failure (including dependent
// cascades) — spec §4.D's notification contract.
func WithObservers(onChange queue.Observer, onOK func(mutation.Snapshot), onErr func(mutation.Snapshot, error)) Option {
	return func(e *Engine) {
		e.onChange = onChange
		e.onOK = onOK
		e.onErr = onErr
	}
}

// Engine is the entry point spec §6 names createEngine/Engine as: it
// owns the mutation queue and id generator shared by every Transaction
// it creates.
type Engine struct {
	cfg    Config
	log    logging.Logger
	tracer trace.Tracer
	ids    *idgen.Generator
	q      *queue.Queue

	registerer    prometheus.Registerer
	registererSet bool

	onChange queue.Observer
	onOK     func(mutation.Snapshot)
	onErr    func(mutation.Snapshot, error)
}

// New constructs an Engine ready to build transactions against. cfg's
// zero value reproduces the spec's stated defaults (see DefaultConfig).
func New(cfg Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{cfg: cfg, log: logging.NoOp(), ids: &idgen.Generator{}}
	for _, opt := range opts {
		opt(e)
	}

	var metrics *queue.Metrics
	if !e.registererSet || e.registerer != nil {
		metrics = queue.NewMetrics(e.cfg.MetricsNamespace, e.cfg.MetricsSubsystem, e.registerer)
	}

	e.q = queue.New(queue.Options{
		HistoryLimit:    e.cfg.HistoryLimit,
		Logger:          e.log,
		Metrics:         metrics,
		Tracer:          e.tracer,
		OnQueueChange:   e.onChange,
		OnMutationOK:    e.onOK,
		OnMutationError: e.onErr,
	})

	return e, nil
}

// CreateTransaction starts a new Transaction bound to this engine's
// queue, id generator, logger and configured retry budget. defaultStore
// may be nil; the transaction then requires SetStore for every staged
// write.
func (e *Engine) CreateTransaction(label string, defaultStore memstore.Store) *txn.Transaction {
	return txn.New(label, defaultStore, e.q, e.ids, e.log, e.cfg.MaxRetries)
}

// Queue exposes the engine's mutation queue for HasPending/Clear/
// Snapshot calls — the external surface spec §6 names alongside
// Transaction.
func (e *Engine) Queue() *queue.Queue { return e.q }

// Close stops the engine's internal turn loop. Safe to call once,
// typically at process shutdown.
func (e *Engine) Close() { e.q.Close() }

// NewStore is a convenience constructor for the engine's one shipped
// adapter, so callers don't need a separate import for the common case.
func NewStore(initial map[string]interface{}) *memstore.Memory {
	return memstore.New(initial)
}
