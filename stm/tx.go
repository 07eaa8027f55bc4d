package stm

// status traverses a transaction's lifecycle.
type status int

const (
	statusIdle status = iota
	statusActive
	statusCommitted
	statusAborted
)

// Attr are the begin-time options a transaction can request.
// VisibleReads and NoExtend are accepted for API parity with a wider
// attribute bitmap but are ignored - this core only ever does
// invisible reads with extension enabled by default.
type Attr struct {
	ReadOnly bool
	NoRetry  bool

	// VisibleReads and NoExtend are accepted but not implemented.
	VisibleReads bool
	NoExtend     bool
}

// Tx is the per-thread transaction descriptor. Exactly one Tx exists
// per thread; it is created once by World.InitThread and reused
// across many transactions.
type Tx struct {
	world *World
	id    uint32

	status status
	attr   Attr

	start uint64
	end   uint64

	canExtend   bool
	extendBound uint64 // 0 means unclamped

	reads  readSet
	writes writeSet

	depth      int
	retryCount uint64
	lastReason AbortReason
}

func newTx(world *World, id uint32) *Tx {
	return &Tx{
		world:     world,
		id:        id,
		reads:     newReadSet(world.cfg.InitialSetCapacity),
		writes:    newWriteSet(world.cfg.InitialSetCapacity),
		canExtend: true,
	}
}

// Status reports the descriptor's current lifecycle state.
func (tx *Tx) Status() string {
	switch tx.status {
	case statusActive:
		return "ACTIVE"
	case statusCommitted:
		return "COMMITTED"
	case statusAborted:
		return "ABORTED"
	default:
		return "IDLE"
	}
}

// RetryCount reports how many times the current (or most recently
// run) transaction body has been retried since its last successful
// commit.
func (tx *Tx) RetryCount() uint64 { return tx.retryCount }

// LastAbortReason reports why the most recent abort on tx happened; it
// is ReasonNone until tx has aborted once.
func (tx *Tx) LastAbortReason() AbortReason { return tx.lastReason }

// SetExtension enables or disables snapshot extension and optionally
// clamps how far tx.end may advance. bound == 0 means unclamped.
func (tx *Tx) SetExtension(enabled bool, bound uint64) {
	tx.canExtend = enabled
	tx.extendBound = bound
}

func (tx *Tx) prepareAttempt(attr Attr) {
	tx.attr = attr
	tx.status = statusActive
	tx.reads.reset()
	tx.writes.reset()
	tx.start = tx.world.clock.load()
	tx.end = tx.start
}
