package stm

// AbortReason identifies why a transaction was rolled back. Callers
// read it with Tx.LastAbortReason and branch on it after a
// non-retrying abort; it is also the label used for the stm/stats
// aborts-by-reason counters.
type AbortReason int

const (
	// ReasonNone is the zero value; never surfaced to callers.
	ReasonNone AbortReason = iota

	// ReasonValRead: a load observed a version newer than the
	// snapshot and extension failed.
	ReasonValRead

	// ReasonValWrite: a store's stripe carries a version newer than
	// the snapshot and the transaction already read an older one.
	ReasonValWrite

	// ReasonWWConflict: at commit-time lock acquisition, another
	// transaction already owns the lock.
	ReasonWWConflict

	// ReasonValidate: revalidation between lock acquisition and
	// publication failed.
	ReasonValidate

	// ReasonROWrite: a read-only transaction attempted a store.
	ReasonROWrite

	// ReasonExplicit: the caller invoked Abort directly.
	ReasonExplicit

	// ReasonKilled: the transaction exceeded its bounded spin while
	// waiting on a contended lock (see the suicide contention
	// manager in stm/contention).
	ReasonKilled
)

func (r AbortReason) String() string {
	switch r {
	case ReasonValRead:
		return "VAL_READ"
	case ReasonValWrite:
		return "VAL_WRITE"
	case ReasonWWConflict:
		return "WW_CONFLICT"
	case ReasonValidate:
		return "VALIDATE"
	case ReasonROWrite:
		return "RO_WRITE"
	case ReasonExplicit:
		return "EXPLICIT"
	case ReasonKilled:
		return "KILLED"
	default:
		return "NONE"
	}
}

// abortSignal is the value panicked by every internal abort path and
// recovered only at the outermost Atomically frame. It unwinds an
// arbitrarily deep call stack back to the transaction's entry point
// without every intermediate call site needing to check an error
// return.
type abortSignal struct {
	reason AbortReason
}
