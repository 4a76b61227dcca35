//go:build linux

package witness_test

import (
	"os"
	"syscall"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tcassar-diss/abiprobe/witness"
)

func TestSyscallCounter(t *testing.T) {
	if os.Geteuid() != 0 {
		t.Skip("loading the counting program requires root")
	}

	c, err := witness.NewSyscallCounter(zap.NewNop().Sugar())
	require.NoError(t, err, "failed to build counter")

	defer c.Close()

	require.NoError(t, c.Watch(os.Getpid()), "failed to attach counter")
	require.ErrorIs(t, c.Watch(os.Getpid()), witness.ErrAlreadyWatching)

	// generate some traffic to count
	for i := 0; i < 10; i++ {
		_ = syscall.Getpid()
	}

	counts, err := c.Counts()
	require.NoError(t, err, "failed to read counts")
	require.NotEmpty(t, counts)
}
