// Package witness observes the probe's syscall stream from the outside,
// checking the properties that black-box output capture cannot see: which
// calls were issued, in what order, with what arguments, and whether
// anything at all executed after the termination call.
package witness

// WriteCall records the observable arguments of one write-class syscall.
type WriteCall struct {
	FD  uint64 `json:"fd"`
	Len uint64 `json:"len"`
}

// Termination records one termination-class syscall and the status it
// carried.
type Termination struct {
	Nr     uint64 `json:"nr"`
	Status uint64 `json:"status"`
}

// Report is everything a witness saw during one traced run.
type Report struct {
	Exited     bool `json:"exited"`
	ExitStatus int  `json:"exit_status"`

	// Counts maps syscall number to the number of times it was issued.
	Counts map[uint64]uint64 `json:"counts"`

	// KernelCounts is the same tally taken kernel-side by the eBPF
	// counter, when one is attached. The ptrace view follows the main
	// thread only, so KernelCounts is the authoritative total.
	KernelCounts map[uint64]uint64 `json:"kernel_counts,omitempty"`

	Writes       []WriteCall   `json:"writes"`
	Terminations []Termination `json:"terminations"`

	// AfterTermination counts syscalls issued after the first
	// termination-class call. Anything above zero is a contract violation.
	AfterTermination uint64 `json:"after_termination"`

	// Stalled is set when the child neither exited nor trapped again
	// within the grace period after issuing its termination call, which is
	// the signature of the probe's fallback halt loop.
	Stalled bool `json:"stalled"`
}
