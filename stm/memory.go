package stm

// Memory is a fixed-size array of word-granularity shared storage.
// Its size never changes after construction, so a pointer to one of
// its words is a stable identity for the lifetime of the Memory -
// that stability is what lets the engine use *uint64 as the "address"
// type throughout: the lock covering a given address is found by
// hashing that pointer.
type Memory struct {
	words []uint64
}

// NewMemory allocates n zero-initialized words.
func NewMemory(n int) *Memory {
	return &Memory{words: make([]uint64, n)}
}

// Len reports the number of addressable words.
func (m *Memory) Len() int { return len(m.words) }

// Addr returns the stable address of word i, usable with Tx.Load,
// Tx.Store and Tx.StoreMasked.
func (m *Memory) Addr(i int) *uint64 { return &m.words[i] }
