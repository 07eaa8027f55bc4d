package stm

import (
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wordstm/core/internal/config"
)

func newTestWorld(t *testing.T) *World {
	t.Helper()
	w := NewWorld(config.Default())
	t.Cleanup(w.Close)
	return w
}

func mustThread(t *testing.T, w *World) *Tx {
	t.Helper()
	tx, err := w.InitThread()
	require.NoError(t, err)
	t.Cleanup(func() { w.ExitThread(tx) })
	return tx
}

func TestSingleThreadedCounter(t *testing.T) {
	w := newTestWorld(t)
	mem := NewMemory(1)
	tx := mustThread(t, w)

	for i := 0; i < 1000; i++ {
		w.Atomically(tx, func(tx *Tx) {
			v := tx.Load(mem.Addr(0))
			tx.Store(mem.Addr(0), v+1)
		})
	}

	got, _ := w.GetStats("commits")
	require.EqualValues(t, 1000, got)
	aborts, _ := w.GetStats("VAL_READ")
	abortsW, _ := w.GetStats("VAL_WRITE")
	require.Zero(t, aborts+abortsW)

	w.Atomically(tx, func(tx *Tx) {
		require.EqualValues(t, 1000, tx.Load(mem.Addr(0)))
	})
}

func TestContendedCounter(t *testing.T) {
	w := newTestWorld(t)
	mem := NewMemory(1)

	const threads = 4
	const perThread = 1000

	var wg sync.WaitGroup
	wg.Add(threads)
	for g := 0; g < threads; g++ {
		go func() {
			defer wg.Done()
			tx, err := w.InitThread()
			require.NoError(t, err)
			defer w.ExitThread(tx)
			for i := 0; i < perThread; i++ {
				w.Atomically(tx, func(tx *Tx) {
					v := tx.Load(mem.Addr(0))
					tx.Store(mem.Addr(0), v+1)
				})
			}
		}()
	}
	wg.Wait()

	commits, _ := w.GetStats("commits")
	require.EqualValues(t, threads*perThread, commits)

	checker := mustThread(t, w)
	w.Atomically(checker, func(tx *Tx) {
		require.EqualValues(t, threads*perThread, tx.Load(mem.Addr(0)))
	})
}

func TestBankTransfer(t *testing.T) {
	w := newTestWorld(t)
	mem := NewMemory(4)

	setup := mustThread(t, w)
	w.Atomically(setup, func(tx *Tx) {
		for i := 0; i < mem.Len(); i++ {
			tx.Store(mem.Addr(i), 100)
		}
	})

	const threads = 8
	const opsPerThread = 1250 // 8 * 1250 = 10000 total operations

	var wg sync.WaitGroup
	wg.Add(threads)
	for g := 0; g < threads; g++ {
		go func(seed int64) {
			defer wg.Done()
			tx, err := w.InitThread()
			require.NoError(t, err)
			defer w.ExitThread(tx)
			rnd := rand.New(rand.NewSource(seed))
			for i := 0; i < opsPerThread; i++ {
				from := rnd.Intn(mem.Len())
				to := rnd.Intn(mem.Len())
				if from == to {
					continue
				}
				w.Atomically(tx, func(tx *Tx) {
					vf := tx.Load(mem.Addr(from))
					vt := tx.Load(mem.Addr(to))
					if vf == 0 {
						return
					}
					tx.Store(mem.Addr(from), vf-1)
					tx.Store(mem.Addr(to), vt+1)
				})
			}
		}(int64(g) + 1)
	}
	wg.Wait()

	checker := mustThread(t, w)
	w.Atomically(checker, func(tx *Tx) {
		total := uint64(0)
		for i := 0; i < mem.Len(); i++ {
			total += tx.Load(mem.Addr(i))
		}
		require.EqualValues(t, 400, total)
	})
}

// A read-only snapshot never observes the writer's two stores torn
// apart.
func TestReadOnlySnapshot(t *testing.T) {
	w := newTestWorld(t)
	mem := NewMemory(2)

	const iterations = 20000
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		tx, err := w.InitThread()
		require.NoError(t, err)
		defer w.ExitThread(tx)
		for i := 0; i < iterations; i++ {
			w.Atomically(tx, func(tx *Tx) {
				a := tx.Load(mem.Addr(0))
				tx.Store(mem.Addr(0), a+1)
				b := tx.Load(mem.Addr(1))
				tx.Store(mem.Addr(1), b+1)
			})
		}
	}()

	violations := 0
	go func() {
		defer wg.Done()
		tx, err := w.InitThread()
		require.NoError(t, err)
		defer w.ExitThread(tx)
		for i := 0; i < iterations; i++ {
			w.AtomicallyReadOnly(tx, func(tx *Tx) {
				a := tx.Load(mem.Addr(0))
				b := tx.Load(mem.Addr(1))
				if a != b {
					violations++
				}
			})
		}
	}()
	wg.Wait()

	require.Zero(t, violations)
}

// An explicit abort with NoRetry leaves memory untouched and control
// returns to the caller.
func TestExplicitAbortNoRetry(t *testing.T) {
	w := newTestWorld(t)
	mem := NewMemory(1)
	tx := mustThread(t, w)

	w.Atomically(tx, func(tx *Tx) {
		tx.Store(mem.Addr(0), 7)
	})

	w.AtomicallyNoRetry(tx, func(tx *Tx) {
		tx.Store(mem.Addr(0), 42)
		tx.Abort(ReasonExplicit)
	})
	require.Equal(t, "ABORTED", tx.Status())

	w.Atomically(tx, func(tx *Tx) {
		require.EqualValues(t, 7, tx.Load(mem.Addr(0)))
	})
}

// Forcing a tiny VersionMax triggers a rollover barrier and
// subsequent commits keep succeeding afterward.
func TestClockRollover(t *testing.T) {
	cfg := config.Default()
	cfg.VersionMax = 1024
	w := NewWorld(cfg)
	t.Cleanup(w.Close)
	mem := NewMemory(4)

	const threads = 4
	const opsPerThread = 600 // comfortably crosses VersionMax=1024 commits total

	var wg sync.WaitGroup
	wg.Add(threads)
	for g := 0; g < threads; g++ {
		go func() {
			defer wg.Done()
			tx, err := w.InitThread()
			require.NoError(t, err)
			defer w.ExitThread(tx)
			for i := 0; i < opsPerThread; i++ {
				w.Atomically(tx, func(tx *Tx) {
					v := tx.Load(mem.Addr(i % mem.Len()))
					tx.Store(mem.Addr(i%mem.Len()), v+1)
				})
			}
		}()
	}
	wg.Wait()

	rollovers, _ := w.GetStats("rollovers")
	require.Greater(t, rollovers, uint64(0))

	// The workers keep committing after their last barrier, so drive the
	// clock to VersionMax once more from a single thread: the commit that
	// reaches it runs the barrier before Atomically returns.
	checker := mustThread(t, w)
	for {
		w.Atomically(checker, func(tx *Tx) {
			tx.Store(mem.Addr(0), 0)
		})
		if n, _ := w.GetStats("rollovers"); n > rollovers {
			break
		}
	}

	for i := 0; i < len(w.locks.slots); i++ {
		require.Zero(t, w.locks.slots[i].Load())
	}

	w.Atomically(checker, func(tx *Tx) {
		tx.Store(mem.Addr(0), 999)
	})
	w.Atomically(checker, func(tx *Tx) {
		require.EqualValues(t, 999, tx.Load(mem.Addr(0)))
	})
}

// Read-your-own-writes composes correctly with a partial-word mask.
func TestReadYourOwnWritesMasked(t *testing.T) {
	w := newTestWorld(t)
	mem := NewMemory(1)
	tx := mustThread(t, w)

	w.Atomically(tx, func(tx *Tx) {
		tx.Store(mem.Addr(0), 0xFFFFFFFF00000000)
	})

	w.Atomically(tx, func(tx *Tx) {
		tx.StoreMasked(mem.Addr(0), 0x00000000DEADBEEF, 0x00000000FFFFFFFF)
		got := tx.Load(mem.Addr(0))
		require.EqualValues(t, uint64(0xFFFFFFFFDEADBEEF), got)
	})

	w.Atomically(tx, func(tx *Tx) {
		require.EqualValues(t, uint64(0xFFFFFFFFDEADBEEF), tx.Load(mem.Addr(0)))
	})
}

// A read-only transaction never acquires locks and commits without
// ticking the clock; it keeps no read set.
func TestReadOnlyNeverLocksOrTicksClock(t *testing.T) {
	w := newTestWorld(t)
	mem := NewMemory(1)
	tx := mustThread(t, w)
	w.Atomically(tx, func(tx *Tx) { tx.Store(mem.Addr(0), 5) })

	before := w.clock.load()
	w.AtomicallyReadOnly(tx, func(tx *Tx) {
		tx.Load(mem.Addr(0))
	})
	after := w.clock.load()
	require.Equal(t, before, after)

	lock := w.locks.getLock(mem.Addr(0))
	require.False(t, isOwned(lock.Load()))
}

// A read-write transaction that performs no stores commits without
// touching the clock.
func TestReadOnlyBodyDoesNotTickClock(t *testing.T) {
	w := newTestWorld(t)
	mem := NewMemory(1)
	tx := mustThread(t, w)
	w.Atomically(tx, func(tx *Tx) { tx.Store(mem.Addr(0), 3) })

	before := w.clock.load()
	w.Atomically(tx, func(tx *Tx) {
		tx.Load(mem.Addr(0))
	})
	require.Equal(t, before, w.clock.load())
}

func TestNestedAtomicallyIsFlat(t *testing.T) {
	w := newTestWorld(t)
	mem := NewMemory(1)
	tx := mustThread(t, w)

	w.Atomically(tx, func(tx *Tx) {
		tx.Store(mem.Addr(0), 1)
		w.Atomically(tx, func(tx *Tx) {
			v := tx.Load(mem.Addr(0))
			tx.Store(mem.Addr(0), v+1)
		})
	})

	w.Atomically(tx, func(tx *Tx) {
		require.EqualValues(t, 2, tx.Load(mem.Addr(0)))
	})
}
