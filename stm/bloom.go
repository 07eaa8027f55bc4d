package stm

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// bloomFilter is a word-sized negative oracle over a transaction's
// write-set addresses. It only ever sets bits, so it can never
// produce a false negative: if it reports "not written", a linear
// scan of the write set agrees.
type bloomFilter uint64

func bloomHash(addr *uint64) uint64 {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], addrBits(addr))
	return xxhash.Sum64(buf[:])
}

func (b *bloomFilter) add(addr *uint64) {
	h := bloomHash(addr)
	bit1 := uint(h & 63)
	bit2 := uint((h >> 32) & 63)
	*b |= bloomFilter(1<<bit1 | 1<<bit2)
}

func (b bloomFilter) mayContain(addr *uint64) bool {
	h := bloomHash(addr)
	bit1 := uint(h & 63)
	bit2 := uint((h >> 32) & 63)
	want := bloomFilter(1<<bit1 | 1<<bit2)
	return b&want == want
}
