// Package abi describes the fixed contract between a user process and its
// kernel's syscall dispatch: which number selects a call, which registers
// carry the arguments, and where the result comes back.
//
// On x86-64 the contract is:
//
//	Syscall Number:   rax
//	Return Value:     rax
//	1st Param (arg0): rdi
//	2nd Param (arg1): rsi
//	3rd Param (arg2): rdx
//	4th Param (arg3): r10
//	5th Param (arg4): r8
//	6th Param (arg5): r9
package abi

// Stdout is the conventional standard output stream descriptor.
const Stdout = 1

// Convention is a syscall numbering assignment. Probe and witness must agree
// on one of these for a run to mean anything.
type Convention struct {
	Name   string
	Getpid uint64
	Write  uint64
	Exit   uint64

	// ExitGroup is a second termination-class number, if the convention has
	// one. Zero means the convention terminates through Exit only.
	ExitGroup uint64
}

// Observed is the numbering the probe was captured against: getpid and write
// use the standard x86-64 numbers, but termination is dispatched on 0.
// Dispatching exit on 0 collides with read under the standard numbering; it
// is preserved here literally because it is the behaviour under test, and
// flagged as a likely dispatch-table defect to the kernel's maintainers.
var Observed = Convention{
	Name:   "observed",
	Getpid: 39,
	Write:  1,
	Exit:   0,
}

// Terminates reports whether nr is a termination-class call under c.
func (c Convention) Terminates(nr uint64) bool {
	if nr == c.Exit {
		return true
	}

	return c.ExitGroup != 0 && nr == c.ExitGroup
}
