package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultMatchesSpecConstants(t *testing.T) {
	c := Default()
	require.Equal(t, 1<<20, c.LockArraySize)
	require.EqualValues(t, 5, c.LockShift)
	require.Equal(t, 4096, c.InitialSetCapacity)
	require.Equal(t, 16, c.MaxCallbacksPerHook)
	require.Equal(t, 8192, c.MaxThreads)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("STM_LOCK_ARRAY_SIZE", "256")
	t.Setenv("STM_MAX_THREADS", "16")
	t.Setenv("STM_SPIN_CAP", "not-a-number")

	c := FromEnv()
	require.Equal(t, 256, c.LockArraySize)
	require.Equal(t, 16, c.MaxThreads)
	// invalid values are ignored in favor of the default.
	require.Equal(t, Default().SpinCap, c.SpinCap)
}
