//go:build linux

package probe

import (
	"golang.org/x/sys/unix"

	"github.com/tcassar-diss/abiprobe/abi"
)

// rawInvoker traps straight into the kernel. RawSyscall skips the runtime's
// entersyscall bookkeeping, which is as close to a bare trap instruction as
// the language offers.
type rawInvoker struct{}

func (rawInvoker) Invoke(nr, a1, a2, a3 uintptr) uintptr {
	r1, _, _ := unix.RawSyscall(nr, a1, a2, a3)
	return r1
}

// NewRawSequence returns the production sequence, wired to the real trap.
func NewRawSequence(conv abi.Convention) *Sequence {
	return NewSequence(conv, rawInvoker{})
}
