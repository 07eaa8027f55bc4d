package stm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteSetMergeOnSecondStore(t *testing.T) {
	mem := NewMemory(1)
	lt := NewLockTable(16, 5)
	ws := newWriteSet(4)

	addr := mem.Addr(0)
	lock := lt.getLock(addr)
	idx := ws.append(writeEntry{addr: addr, value: 0x000000FF, mask: 0x000000FF, lock: lock, drop: true})
	require.Equal(t, 0, idx)

	found := ws.find(addr)
	require.Equal(t, 0, found)
	e := &ws.entries[found]
	e.value = (e.value &^ 0x0000FF00) | (0x0000AA00 & 0x0000FF00)
	e.mask |= 0x0000FF00
	require.EqualValues(t, 0x0000AAFF, e.value)
	require.EqualValues(t, 0x0000FFFF, e.mask)
}

func TestWriteSetFindMissAfterReset(t *testing.T) {
	mem := NewMemory(2)
	lt := NewLockTable(16, 5)
	ws := newWriteSet(4)
	ws.append(writeEntry{addr: mem.Addr(0), lock: lt.getLock(mem.Addr(0)), drop: true})
	require.NotEqual(t, -1, ws.find(mem.Addr(0)))
	ws.reset()
	require.Equal(t, -1, ws.find(mem.Addr(0)))
	require.Equal(t, -1, ws.find(mem.Addr(1)))
}

func TestReadSetContainsAndReset(t *testing.T) {
	lt := NewLockTable(16, 5)
	rs := newReadSet(4)
	// Two distinct slots: neighbouring words of one Memory usually share
	// a stripe, so they cannot stand in for two different locks.
	lock0 := &lt.slots[0]
	lock1 := &lt.slots[1]

	rs.append(lock0, 1)
	require.True(t, rs.contains(lock0))
	require.False(t, rs.contains(lock1))

	rs.reset()
	require.False(t, rs.contains(lock0))
	require.Len(t, rs.entries, 0)
}
