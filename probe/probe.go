// Package probe exercises a kernel's syscall dispatch with the smallest
// possible program: getpid, one fixed write, exit. It checks nothing about
// the results; it exists so that an external harness can check everything
// about the probe.
package probe

import (
	"unsafe"

	"github.com/tcassar-diss/abiprobe/abi"
)

// Message is the diagnostic emitted by the write step. It deliberately stops
// after the colon: the probe never formats the queried pid into the message.
const Message = "Test getpid syscall - PID: "

// ExitStatus is passed to the termination call.
const ExitStatus = 42

// diagnostic is the static buffer handed to the kernel. It carries a
// terminator, but the write is issued with the explicit length len(Message),
// so the terminator never reaches the output stream.
//
// diagnostic must stay a package-level var: its address travels through
// Invoke as a uintptr, which only stays valid because this buffer can never
// be stack-allocated or moved. Do not rework it into a local.
var diagnostic = []byte(Message + "\x00")

// Invoker issues one raw syscall. The production implementation traps into
// the kernel; tests substitute their own.
type Invoker interface {
	Invoke(nr, a1, a2, a3 uintptr) uintptr
}

// State tracks how far through the fixed sequence a run has progressed.
type State int

const (
	Querying State = iota
	Reporting
	Terminating

	// Halted is only reachable if the termination call returns control,
	// which a conformant kernel must never do.
	Halted
)

// Sequence runs the three probe syscalls in order against one convention.
type Sequence struct {
	conv  abi.Convention
	inv   Invoker
	halt  func()
	state State
}

func NewSequence(conv abi.Convention, inv Invoker) *Sequence {
	return &Sequence{conv: conv, inv: inv, halt: spin}
}

// NewTestSequence substitutes the fallback halt so tests can observe it
// being reached without hanging.
func NewTestSequence(conv abi.Convention, inv Invoker, halt func()) *Sequence {
	return &Sequence{conv: conv, inv: inv, halt: halt}
}

// Run performs the fixed sequence. On a conformant kernel it never returns:
// the termination call is the last thing this process executes. If control
// does come back, Run pins the CPU in the fallback loop rather than letting
// execution fall off the end of a program that believes itself dead.
func (s *Sequence) Run() {
	s.state = Querying
	_ = s.inv.Invoke(uintptr(s.conv.Getpid), 0, 0, 0)

	s.state = Reporting
	_ = s.inv.Invoke(
		uintptr(s.conv.Write),
		abi.Stdout,
		uintptr(unsafe.Pointer(&diagnostic[0])),
		uintptr(len(Message)),
	)

	s.state = Terminating
	_ = s.inv.Invoke(uintptr(s.conv.Exit), ExitStatus, 0, 0)

	s.state = Halted
	s.halt()
}

// State reports how far the sequence progressed. Meaningful only after Run
// has been observed to stop (i.e. from a test's fake halt).
func (s *Sequence) State() State {
	return s.state
}

// spin is the fallback halt: no syscalls, no yield points, no way out.
func spin() {
	for {
	}
}
