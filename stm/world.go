package stm

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/wordstm/core/internal/config"
	"github.com/wordstm/core/stm/contention"
	"github.com/wordstm/core/stm/stats"
)

// World is the shared context for one STM instance: the lock table,
// the global clock, the thread registry, the callback arrays, and
// stats are all owned here rather than living as package-level
// globals, so a process can run more than one independent instance.
type World struct {
	cfg config.Config
	cm  contention.Manager

	clock Clock
	locks *LockTable

	cb    *callbacks
	Stats *stats.Counters
	log   zerolog.Logger

	// quiesce is the rollover barrier. Every in-flight
	// transaction attempt holds a read lock for its duration;
	// performRollover takes the write lock, which blocks until every
	// in-flight attempt has finished, giving stop-the-world semantics
	// without a manual thread walk.
	quiesce sync.RWMutex

	threadsMu sync.Mutex
	threads   map[uint32]*Tx
	nextID    uint32
	free      []uint32

	initialized bool
}

// Option configures a World at construction.
type Option func(*World)

// WithContentionManager overrides the default suicide policy.
func WithContentionManager(cm contention.Manager) Option {
	return func(w *World) { w.cm = cm }
}

// WithLogger overrides the zero-value (disabled) logger.
func WithLogger(l zerolog.Logger) Option {
	return func(w *World) { w.log = l }
}

// WithMetricsRegistry registers the World's stats against reg instead
// of skipping Prometheus registration.
func WithMetricsRegistry(reg *prometheus.Registry) Option {
	return func(w *World) { w.Stats = stats.New(reg) }
}

// NewWorld initializes the lock table, clock, and thread registry.
// Each call produces an independent, fully-initialized World; there
// is no hidden process-wide singleton to double-init.
func NewWorld(cfg config.Config, opts ...Option) *World {
	w := &World{
		cfg:     cfg,
		cm:      contention.Suicide{},
		locks:   NewLockTable(cfg.LockArraySize, cfg.LockShift),
		cb:      newCallbacks(cfg.MaxCallbacksPerHook),
		Stats:   stats.New(nil),
		log:     zerolog.Nop(),
		threads: make(map[uint32]*Tx),
	}
	for _, o := range opts {
		o(w)
	}
	w.initialized = true
	w.cb.fireInit()
	return w
}

// Close tears down the World: it fires the exit callbacks once and
// drops the thread registry.
func (w *World) Close() {
	w.threadsMu.Lock()
	defer w.threadsMu.Unlock()
	w.cb.fireExit()
	w.threads = nil
	w.initialized = false
}

// InitThread allocates and registers a per-thread descriptor. The
// calling goroutine must keep
// using the returned *Tx for every transaction it runs and must call
// ExitThread when done.
func (w *World) InitThread() (*Tx, error) {
	w.threadsMu.Lock()
	defer w.threadsMu.Unlock()

	var id uint32
	if n := len(w.free); n > 0 {
		id = w.free[n-1]
		w.free = w.free[:n-1]
	} else {
		if int(w.nextID) >= w.cfg.MaxThreads {
			return nil, errors.Errorf("stm: thread registry exhausted (max %d)", w.cfg.MaxThreads)
		}
		id = w.nextID
		w.nextID++
	}

	tx := newTx(w, id)
	w.threads[id] = tx
	return tx, nil
}

// ExitThread deregisters tx and frees its slot so it can be reused by
// a future thread.
func (w *World) ExitThread(tx *Tx) {
	w.threadsMu.Lock()
	defer w.threadsMu.Unlock()
	delete(w.threads, tx.id)
	w.free = append(w.free, tx.id)
}

// RegisterCallbacks registers one set of lifecycle hooks, sharing arg
// across all of them.
func (w *World) RegisterCallbacks(onInit initHook, onExit exitHook, onBegin beginHook, onPrecommit precommitHook, onCommit commitHook, onAbort abortHook, arg interface{}) bool {
	return w.cb.register(onInit, onExit, onBegin, onPrecommit, onCommit, onAbort, arg)
}

// GetStats looks up a named counter by World.Stats.
func (w *World) GetStats(name string) (uint64, bool) {
	return w.Stats.Get(name)
}
