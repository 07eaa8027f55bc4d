package stm

import (
	"runtime"
	"sync/atomic"

	"github.com/wordstm/core/stm/contention"
)

// fullMask marks a complete-word store; any other mask value encodes
// a partial-word store.
const fullMask = ^uint64(0)

// Atomically runs body as a transaction on tx, retrying transparently
// until it commits or is explicitly/non-retryably aborted. body is
// called in a loop whose exit condition is the commit result, which
// is how this package gets restart-on-conflict without a manual
// retry flag at every call site. A nested call to Atomically on the
// same *Tx runs its body inline, sharing the outer transaction's
// state instead of starting a fresh snapshot - nesting is flat.
func Atomically(world *World, tx *Tx, attr Attr, body func(*Tx)) {
	tx.depth++
	if tx.depth > 1 {
		body(tx)
		tx.depth--
		return
	}
	defer func() { tx.depth = 0 }()

	for {
		world.quiesce.RLock()
		tx.prepareAttempt(attr)
		if tx.start >= world.cfg.VersionMax {
			world.quiesce.RUnlock()
			world.performRollover()
			continue
		}
		world.cb.fireBegin()

		committed, retry, needsRollover := tx.runAttempt(body)
		world.quiesce.RUnlock()

		if needsRollover {
			world.performRollover()
		}
		if committed {
			return
		}
		if !retry {
			return
		}
	}
}

// runAttempt runs one speculative execution of body and, if it
// returns normally, attempts to commit. Any abort - from deep inside
// body via Load/Store/Abort, or from the commit protocol itself -
// unwinds here via panic(abortSignal{...}), the only place in this
// package panic/recover stands in for a non-local jump back to the
// retry loop.
func (tx *Tx) runAttempt(body func(*Tx)) (committed, retry, needsRollover bool) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		as, ok := r.(abortSignal)
		if !ok {
			panic(r)
		}
		committed = false
		retry = !(tx.attr.NoRetry || as.reason == ReasonExplicit)
	}()

	body(tx)
	needsRollover = tx.commit()
	committed = true
	return
}

// Load performs an invisible read: check the write set first so a
// transaction always observes its own pending stores, then fall back
// to the shared memory word.
func (tx *Tx) Load(addr *uint64) uint64 {
	if idx := tx.writes.find(addr); idx >= 0 {
		e := &tx.writes.entries[idx]
		if e.mask == fullMask {
			return e.value
		}
		raw := tx.readRaw(addr)
		return (raw &^ e.mask) | (e.value & e.mask)
	}
	return tx.readRaw(addr)
}

// readRaw is the lock-value-lock idiom: sample the stripe lock,
// sample the value, and re-sample the lock, retrying on any sign the
// value was torn by a concurrent writer.
func (tx *Tx) readRaw(addr *uint64) uint64 {
	lock := tx.world.locks.getLock(addr)
	attempt := 0
	for {
		w1 := lock.Load()
		if isOwned(w1) {
			tx.waitOnConflict(&attempt)
			continue
		}

		value := atomic.LoadUint64(addr)
		w2 := lock.Load()
		if w1 != w2 {
			continue
		}

		v := version(w1)
		if v > tx.end {
			if !tx.extend() {
				tx.abort(ReasonValRead)
			}
			continue
		}

		if !tx.attr.ReadOnly {
			tx.reads.append(lock, v)
		}
		return value
	}
}

// Store implements a full-word transactional store.
func (tx *Tx) Store(addr *uint64, value uint64) {
	tx.storeMasked(addr, value, fullMask)
}

// StoreMasked implements a partial-word transactional store: the
// eventually published word is (current &^ mask) | (value & mask).
func (tx *Tx) StoreMasked(addr *uint64, value, mask uint64) {
	tx.storeMasked(addr, value, mask)
}

func (tx *Tx) storeMasked(addr *uint64, value, mask uint64) {
	if tx.attr.ReadOnly {
		tx.abort(ReasonROWrite)
	}

	lock := tx.world.locks.getLock(addr)
	attempt := 0
	for {
		w := lock.Load()
		if isOwned(w) {
			tx.waitOnConflict(&attempt)
			continue
		}

		if idx := tx.writes.find(addr); idx >= 0 {
			e := &tx.writes.entries[idx]
			e.value = (e.value &^ mask) | (value & mask)
			e.mask |= mask
			return
		}

		v := version(w)
		if v > tx.end {
			if !tx.canExtend || tx.reads.contains(lock) {
				tx.abort(ReasonValWrite)
			}
			if !tx.extend() {
				tx.abort(ReasonValWrite)
			}
			continue
		}

		tx.writes.append(writeEntry{
			addr:            addr,
			value:           value & mask,
			mask:            mask,
			lock:            lock,
			capturedVersion: v,
			drop:            true,
		})
		return
	}
}

// waitOnConflict consults the World's contention manager when a read
// or write observes an owned stripe. The default suicide policy waits
// up to SpinCap attempts and then aborts with ReasonKilled, bounding a
// wait that would otherwise spin forever against a dead owner.
func (tx *Tx) waitOnConflict(attempt *int) {
	d := tx.world.cm.OnConflict(*attempt, tx.world.cfg.SpinCap)
	*attempt++
	if d == contention.AbortSelf {
		tx.abort(ReasonKilled)
	}
	if *attempt%64 == 0 {
		runtime.Gosched()
	}
}

// extend tries to move tx's snapshot forward to the current clock
// value without aborting, by revalidating every existing read. This
// is what lets a long-running read-write transaction survive commits
// that don't actually conflict with anything it touched. Read-only
// transactions keep no read set and never extend.
func (tx *Tx) extend() bool {
	if !tx.canExtend || tx.attr.ReadOnly {
		return false
	}
	now := tx.world.clock.load()
	if now >= tx.world.cfg.VersionMax {
		return false
	}
	if tx.extendBound != 0 && now > tx.extendBound {
		return false
	}
	if !tx.validate() {
		return false
	}
	tx.end = now
	return true
}

// validate confirms every entry in the read set still reflects the
// version it was read at - unowned and unchanged, or owned by this
// same transaction at the version it last stored.
func (tx *Tx) validate() bool {
	for i := range tx.reads.entries {
		re := &tx.reads.entries[i]
		w := re.lock.Load()
		if isOwned(w) {
			if ownerTxID(w) != tx.id {
				return false
			}
			owningIdx := ownerEntryIndex(w)
			if int(owningIdx) >= len(tx.writes.entries) {
				return false
			}
			if tx.writes.entries[owningIdx].capturedVersion != re.version {
				return false
			}
			continue
		}
		if version(w) != re.version {
			return false
		}
	}
	return true
}

// commit runs the commit-time locking protocol: acquire every write-
// set stripe, take a commit timestamp, revalidate the read set if
// another commit raced in since the snapshot, publish the new values,
// and release. It returns true when the just-ticked clock reached
// VersionMax, signalling the caller to run the rollover barrier once
// the quiescence read-lock has been released. On failure it panics
// via tx.abort, unwound by runAttempt.
func (tx *Tx) commit() (needsRollover bool) {
	if len(tx.writes.entries) == 0 {
		tx.status = statusCommitted
		tx.world.cb.fireCommit()
		tx.retryCount = 0
		tx.world.Stats.RecordCommit(len(tx.reads.entries), 0)
		return false
	}

	tx.world.cb.firePrecommit()

	// Acquire phase: reverse order gives a deterministic lock order
	// across transactions and lets a later entry discover it shares a
	// stripe with one this transaction already owns (coalescing).
	for i := len(tx.writes.entries) - 1; i >= 0; i-- {
		e := &tx.writes.entries[i]
		for {
			w := e.lock.Load()
			if isOwned(w) {
				if ownerTxID(w) == tx.id {
					e.drop = false
					break
				}
				tx.abort(ReasonWWConflict)
			}
			v := version(w)
			if !e.lock.CompareAndSwap(w, packOwner(tx.id, uint32(i))) {
				continue
			}
			e.capturedVersion = v
			break
		}
	}

	commitTS := tx.world.clock.fetchAddOne()

	// Only revalidate if some other commit's timestamp could have
	// landed between this transaction's snapshot and its own commit.
	if tx.start != commitTS-1 {
		if !tx.validate() {
			tx.abort(ReasonValidate)
		}
	}

	// Publish the new values before releasing the acquired stripes.
	for i := range tx.writes.entries {
		e := &tx.writes.entries[i]
		if e.mask == fullMask {
			atomic.StoreUint64(e.addr, e.value)
		} else {
			for {
				cur := atomic.LoadUint64(e.addr)
				next := (cur &^ e.mask) | (e.value & e.mask)
				if atomic.CompareAndSwapUint64(e.addr, cur, next) {
					break
				}
			}
		}
	}
	tx.releaseAcquiredLocks(true, commitTS)

	tx.status = statusCommitted
	tx.world.cb.fireCommit()
	tx.retryCount = 0
	tx.world.Stats.RecordCommit(len(tx.reads.entries), len(tx.writes.entries))

	return commitTS >= tx.world.cfg.VersionMax
}

// releaseAcquiredLocks releases every write-set entry this
// transaction actually holds (drop == true and the lock word still
// identifies this entry as owner). Entries never reached by the
// acquire phase, or reached only as a coalesced duplicate of another
// entry's lock, are left untouched - this makes the same helper safe
// to call both mid-acquire (on a WW_CONFLICT abort, only a suffix of
// entries was ever locked) and after a full commit or clean rollback.
func (tx *Tx) releaseAcquiredLocks(published bool, commitTS uint64) {
	for i := range tx.writes.entries {
		e := &tx.writes.entries[i]
		if !e.drop {
			continue
		}
		cur := e.lock.Load()
		if !isOwned(cur) || ownerTxID(cur) != tx.id || ownerEntryIndex(cur) != uint32(i) {
			continue
		}
		if published {
			e.lock.Store(packVersion(commitTS))
		} else {
			e.lock.Store(packVersion(e.capturedVersion))
		}
	}
}

// abort releases whatever locks this attempt actually holds, records
// the reason, and unwinds via panic to runAttempt's recover, which
// decides whether to retry.
func (tx *Tx) abort(reason AbortReason) {
	tx.releaseAcquiredLocks(false, 0)
	tx.status = statusAborted
	tx.lastReason = reason
	tx.retryCount++
	tx.world.cb.fireAbort(reason)
	tx.world.Stats.RecordAbort(reason.String())
	panic(abortSignal{reason: reason})
}

// Abort lets a transaction body abort itself explicitly. It never
// returns normally.
func (tx *Tx) Abort(reason AbortReason) {
	if reason == ReasonNone {
		reason = ReasonExplicit
	}
	tx.abort(reason)
}

// performRollover is a stop-the-world barrier that resets the clock
// and zero-fills the lock table before the clock can wrap. Taking the
// write side of the quiescence RWMutex blocks until every in-flight
// transaction attempt (each holding the read side) has finished.
func (w *World) performRollover() {
	w.quiesce.Lock()
	defer w.quiesce.Unlock()
	w.clock.reset()
	w.locks.resetAll()
	w.Stats.RecordRollover()
	w.log.Warn().Msg("stm: clock rollover barrier executed")
}
