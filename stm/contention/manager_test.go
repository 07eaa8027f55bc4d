package contention

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSuicideRetriesUntilSpinCap(t *testing.T) {
	var s Suicide
	const cap = 8
	for i := 0; i < cap; i++ {
		require.Equal(t, Retry, s.OnConflict(i, cap))
	}
	require.Equal(t, AbortSelf, s.OnConflict(cap, cap))
}

func TestSuicideZeroSpinCapIsUnbounded(t *testing.T) {
	var s Suicide
	require.Equal(t, Retry, s.OnConflict(0, 0))
}
