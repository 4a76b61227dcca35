//go:build linux && amd64

package abi

import "golang.org/x/sys/unix"

// CallNumber returns the syscall number from a syscall-enter stop. orig_rax
// holds the number even after the kernel has scribbled on rax.
func CallNumber(regs *unix.PtraceRegs) uint64 {
	return regs.Orig_rax
}

// CallArgs returns the six argument registers in ABI order.
func CallArgs(regs *unix.PtraceRegs) [6]uint64 {
	return [6]uint64{regs.Rdi, regs.Rsi, regs.Rdx, regs.R10, regs.R8, regs.R9}
}

// ReturnValue returns the result register. Only valid at a syscall-exit stop.
func ReturnValue(regs *unix.PtraceRegs) uint64 {
	return regs.Rax
}
