package stm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLockWordEncodeDecode(t *testing.T) {
	w := packOwner(42, 7)
	require.True(t, isOwned(w))
	require.EqualValues(t, 42, ownerTxID(w))
	require.EqualValues(t, 7, ownerEntryIndex(w))

	v := packVersion(123456)
	require.False(t, isOwned(v))
	require.EqualValues(t, 123456, version(v))
}

func TestLockTableCollisionsAreSafeNotFatal(t *testing.T) {
	lt := NewLockTable(1, 5) // single slot forces every address to collide
	mem := NewMemory(8)
	a := lt.getLock(mem.Addr(0))
	b := lt.getLock(mem.Addr(1))
	require.Same(t, a, b)
}

func TestLockTableResetAll(t *testing.T) {
	lt := NewLockTable(4, 5)
	lt.slots[0].Store(packOwner(1, 0))
	lt.slots[2].Store(packVersion(99))
	lt.resetAll()
	for i := range lt.slots {
		require.Zero(t, lt.slots[i].Load())
	}
}
