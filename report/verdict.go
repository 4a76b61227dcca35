package report

// Outcome classifies a single probe run.
type Outcome string

const (
	// OutcomeConformant means the kernel honoured the whole contract: the
	// diagnostic arrived byte-exact and the termination call took effect
	// with the expected status.
	OutcomeConformant Outcome = "conformant"

	// OutcomeTerminationDefect means the termination call returned control
	// and the probe was found pinned in its fallback loop.
	OutcomeTerminationDefect Outcome = "termination-defect"

	OutcomeOutputMismatch Outcome = "output-mismatch"
	OutcomeStatusMismatch Outcome = "status-mismatch"
)

// Verdict is a complete record of one probe run.
type Verdict struct {
	Outcome    Outcome `json:"outcome"`
	Exited     bool    `json:"exited"`
	ExitStatus int     `json:"exit_status"`
	Stdout     string  `json:"stdout"`

	// BusyWait is set when the stalled probe was confirmed to be burning
	// CPU in its halt loop rather than blocked in the kernel.
	BusyWait bool `json:"busy_wait"`

	ElapsedNS int64  `json:"elapsed_ns"`
	Detail    string `json:"detail,omitempty"`
}
