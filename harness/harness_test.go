package harness_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tcassar-diss/abiprobe/harness"
	"github.com/tcassar-diss/abiprobe/report"
)

// shConfig builds a config that runs a shell snippet in place of the probe
// binary, so kernel behaviours can be staged without a kernel.
func shConfig(script string, timeout, grace time.Duration) *harness.Config {
	cfg := harness.DefaultConfig()
	cfg.ProbePath = "/bin/sh"
	cfg.Args = []string{"-c", script}
	cfg.Timeout = harness.Duration(timeout)
	cfg.Grace = harness.Duration(grace)
	cfg.Runs = 1

	return cfg
}

func newHarness(t *testing.T, cfg *harness.Config) *harness.Harness {
	t.Helper()

	logger := zap.NewNop().Sugar()

	h, err := harness.NewHarness(logger, cfg, report.NewJSONReporter(logger))
	require.NoError(t, err, "failed to build harness")

	return h
}

const emitDiagnostic = `printf 'Test getpid syscall - PID: '`

func TestRunConformant(t *testing.T) {
	h := newHarness(t, shConfig(emitDiagnostic+`; exit 42`, 5*time.Second, 500*time.Millisecond))

	v, err := h.Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, report.OutcomeConformant, v.Outcome)
	require.True(t, v.Exited)
	require.Equal(t, 42, v.ExitStatus)
	require.Equal(t, "Test getpid syscall - PID: ", v.Stdout)
}

func TestRunStatusMismatch(t *testing.T) {
	h := newHarness(t, shConfig(emitDiagnostic+`; exit 7`, 5*time.Second, 500*time.Millisecond))

	v, err := h.Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, report.OutcomeStatusMismatch, v.Outcome)
	require.Equal(t, 7, v.ExitStatus)
}

func TestRunOutputMismatch(t *testing.T) {
	h := newHarness(t, shConfig(`printf 'PANIC: no such syscall'; exit 42`, 5*time.Second, 500*time.Millisecond))

	v, err := h.Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, report.OutcomeOutputMismatch, v.Outcome)
}

func TestRunTrailingOutputIsAMismatch(t *testing.T) {
	// even a trailing newline breaks byte-exactness
	h := newHarness(t, shConfig(`echo 'Test getpid syscall - PID: '; exit 42`, 5*time.Second, 500*time.Millisecond))

	v, err := h.Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, report.OutcomeOutputMismatch, v.Outcome)
}

func TestRunDetectsHaltLoop(t *testing.T) {
	// a probe whose termination call returned: diagnostic written, then a
	// busy loop issuing no further syscalls and no further output
	h := newHarness(t, shConfig(
		emitDiagnostic+`; while :; do :; done`,
		300*time.Millisecond,
		300*time.Millisecond,
	))

	v, err := h.Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, report.OutcomeTerminationDefect, v.Outcome)
	require.False(t, v.Exited)
	require.True(t, v.BusyWait, "halt loop must show up as a pegged cpu")
	require.Equal(t, "Test getpid syscall - PID: ", v.Stdout)
	require.Empty(t, v.Detail, "no output may appear during the grace period")
}

func TestRunDetectsOrdinaryHang(t *testing.T) {
	// a blocked probe is still a termination defect, but not a busy-wait
	h := newHarness(t, shConfig(
		emitDiagnostic+`; sleep 60`,
		300*time.Millisecond,
		200*time.Millisecond,
	))

	v, err := h.Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, report.OutcomeTerminationDefect, v.Outcome)
	require.False(t, v.BusyWait)
}

func TestRunPropagatesCancellation(t *testing.T) {
	// a healthy, slow probe must not be condemned when the harness itself
	// is cancelled
	h := newHarness(t, shConfig(emitDiagnostic+`; sleep 60; exit 42`, time.Minute, 500*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	v, err := h.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Nil(t, v, "a cancelled run must not produce a verdict")
}

func TestRunAllIsIdempotent(t *testing.T) {
	cfg := shConfig(emitDiagnostic+`; exit 42`, 5*time.Second, 500*time.Millisecond)
	cfg.Runs = 3

	h := newHarness(t, cfg)

	verdicts, err := h.RunAll(context.Background())
	require.NoError(t, err)
	require.Len(t, verdicts, 3)

	for _, v := range verdicts {
		require.Equal(t, report.OutcomeConformant, v.Outcome)
		require.Equal(t, verdicts[0].Stdout, v.Stdout)
		require.Empty(t, v.Detail)
	}
}
