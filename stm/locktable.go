package stm

import (
	"encoding/binary"
	"sync/atomic"
	"unsafe"

	"github.com/cespare/xxhash/v2"
)

// Lock word layout. Bit 0 is the owned flag. When owned, the
// remaining bits encode (ownerTxID, entryIndex) identifying the
// write-set entry that acquired the lock; only the owning transaction
// ever decodes this pair, so 16+20 bits is ample headroom for the
// thread count and write-set sizes this package expects to see. When
// unowned, the remaining 63 bits are the published version.
//
// TL2 as originally described steals the low bit of a genuine owner
// pointer, relying on pointer alignment to leave it free; Go cannot
// safely alias a live pointer's bit pattern that way. Packing a
// (txID, entryIndex) pair into the word instead gets the same
// one-word ownership test without ever reinterpreting a pointer.
const (
	lockOwnedBit    = uint64(1)
	entryIndexBits  = 20
	entryIndexMask  = uint64(1)<<entryIndexBits - 1
	txIDBits        = 16
	txIDMask        = uint64(1)<<txIDBits - 1
	ownerIndexShift = 1
	ownerTxShift    = ownerIndexShift + entryIndexBits
)

// lockUnit is a reserved all-ones sentinel for a momentary single-word
// non-transactional update. This core never publishes it, but the
// value is kept unavailable to ordinary owner encodings so a future
// unit-store path wouldn't be mistaken for an ordinary transactional
// owner and charged to WW_CONFLICT bookkeeping.
const lockUnit = ^uint64(0)

// defaultLockArraySize backs NewLockTable when called with size <= 0.
const defaultLockArraySize = 1 << 20

func isOwned(w uint64) bool { return w&lockOwnedBit != 0 }

func packVersion(v uint64) uint64 { return v << 1 }

func version(w uint64) uint64 { return w >> 1 }

func packOwner(txID, entryIdx uint32) uint64 {
	return lockOwnedBit |
		((uint64(entryIdx) & entryIndexMask) << ownerIndexShift) |
		((uint64(txID) & txIDMask) << ownerTxShift)
}

func ownerEntryIndex(w uint64) uint32 {
	return uint32((w >> ownerIndexShift) & entryIndexMask)
}

func ownerTxID(w uint64) uint32 {
	return uint32((w >> ownerTxShift) & txIDMask)
}

// LockTable is a fixed-size array of lock words, each stripe covering
// many addresses. Collisions (distinct stripes sharing a slot) are
// permitted; they produce false conflicts, never unsafety.
type LockTable struct {
	slots []atomic.Uint64
	shift uint
}

// NewLockTable allocates a lock table with size slots, hashing
// addresses after shifting them right by shift bits (log2(word size)+2,
// i.e. 5 for an 8-byte word, so each 32-byte aligned run of four
// neighboring words shares one stripe).
func NewLockTable(size int, shift uint) *LockTable {
	if size <= 0 {
		size = defaultLockArraySize
	}
	return &LockTable{slots: make([]atomic.Uint64, size), shift: shift}
}

func addrBits(addr *uint64) uint64 {
	return uint64(uintptr(unsafe.Pointer(addr)))
}

// getLock resolves the stripe lock covering addr.
func (lt *LockTable) getLock(addr *uint64) *atomic.Uint64 {
	shifted := addrBits(addr) >> lt.shift
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], shifted)
	h := xxhash.Sum64(buf[:])
	idx := h % uint64(len(lt.slots))
	return &lt.slots[idx]
}

// resetAll zero-fills every lock word. Only safe to call while the
// rollover barrier excludes every other transaction.
func (lt *LockTable) resetAll() {
	for i := range lt.slots {
		lt.slots[i].Store(0)
	}
}
