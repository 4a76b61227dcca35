// Package harness runs the probe binary and classifies what the kernel did
// with it. The probe reports nothing itself; every judgement about the
// kernel's syscall dispatch is made out here, from the process's exit
// status, its captured output, and how it behaves when it refuses to die.
package harness

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tcassar-diss/abiprobe/procstat"
	"github.com/tcassar-diss/abiprobe/report"
)

type Harness struct {
	logger   *zap.SugaredLogger
	cfg      *Config
	stat     procstat.ProcStat
	reporter report.Reporter
}

func NewHarness(logger *zap.SugaredLogger, cfg *Config, reporter report.Reporter) (*Harness, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to build harness: %w", err)
	}

	return &Harness{
		logger:   logger,
		cfg:      cfg,
		stat:     procstat.NewProcStat(logger),
		reporter: reporter,
	}, nil
}

// RunAll executes the configured number of probe runs and reports each
// verdict. Runs are independent processes, so they fan out concurrently.
// Output must be byte-identical across runs; a divergence is noted on the
// offending verdict since the identity-query result must never leak into
// the output.
func (h *Harness) RunAll(ctx context.Context) ([]*report.Verdict, error) {
	var (
		group    errgroup.Group
		mu       sync.Mutex
		verdicts []*report.Verdict
	)

	for i := 0; i < h.cfg.Runs; i++ {
		group.Go(func() error {
			v, err := h.Run(ctx)
			if err != nil {
				return fmt.Errorf("probe run failed: %w", err)
			}

			mu.Lock()
			verdicts = append(verdicts, v)
			mu.Unlock()

			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}

	for _, v := range verdicts[1:] {
		if v.Stdout == verdicts[0].Stdout {
			continue
		}

		v.Detail = "output differs between runs"

		h.logger.Errorw(
			"probe output is not idempotent",
			"first", verdicts[0].Stdout,
			"got", v.Stdout,
		)
	}

	for _, v := range verdicts {
		h.reporter.Report(v)
	}

	return verdicts, nil
}

// Run executes the probe once and classifies the outcome.
func (h *Harness) Run(ctx context.Context) (*report.Verdict, error) {
	h.logger.Infow("running probe", "probe", h.cfg.ProbePath)

	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, time.Duration(h.cfg.Timeout))
	defer cancel()

	var stdout lockedBuffer

	cmd := exec.Command(h.cfg.ProbePath, h.cfg.Args...)
	cmd.Stdout = &stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start probe: %w", err)
	}

	done := make(chan error, 1)

	go func() {
		done <- cmd.Wait()
	}()

	select {
	case <-done:
		return h.classifyExit(cmd, stdout.String(), time.Since(start)), nil
	case <-ctx.Done():
		// only the run timeout says anything about the probe; a cancelled
		// parent context must not condemn a healthy kernel
		if !errors.Is(ctx.Err(), context.DeadlineExceeded) {
			if err := cmd.Process.Kill(); err != nil {
				return nil, fmt.Errorf("failed to kill probe after cancellation: %w", err)
			}

			<-done

			return nil, fmt.Errorf("harness cancelled: %w", ctx.Err())
		}

		return h.classifyStall(cmd, &stdout, done, start)
	}
}

func (h *Harness) classifyExit(cmd *exec.Cmd, stdout string, elapsed time.Duration) *report.Verdict {
	v := &report.Verdict{
		Exited:     true,
		ExitStatus: cmd.ProcessState.ExitCode(),
		Stdout:     stdout,
		ElapsedNS:  elapsed.Nanoseconds(),
	}

	switch {
	case stdout != h.cfg.ExpectedOutput:
		v.Outcome = report.OutcomeOutputMismatch
		v.Detail = fmt.Sprintf("want %q on stdout, got %q", h.cfg.ExpectedOutput, stdout)
	case v.ExitStatus != h.cfg.ExpectedStatus:
		v.Outcome = report.OutcomeStatusMismatch
		v.Detail = fmt.Sprintf("want exit status %d, got %d", h.cfg.ExpectedStatus, v.ExitStatus)
	default:
		v.Outcome = report.OutcomeConformant
	}

	h.logger.Infow("probe exited", "outcome", v.Outcome, "status", v.ExitStatus)

	return v
}

// classifyStall handles a probe that outlived its timeout. A kernel whose
// termination call returned leaves the probe in its fallback spin: runnable,
// burning CPU, issuing no syscalls and writing no further output. Sample for
// exactly that signature over the grace period, then put the process down.
func (h *Harness) classifyStall(
	cmd *exec.Cmd,
	stdout *lockedBuffer,
	done chan error,
	start time.Time,
) (*report.Verdict, error) {
	pid := int32(cmd.Process.Pid)

	h.logger.Warnw("probe missed its timeout, sampling for a busy-wait", "pid", pid)

	outBefore := stdout.Len()

	busy, err := h.stat.Busy(pid, time.Duration(h.cfg.Grace))
	if err != nil {
		return nil, fmt.Errorf("failed to sample stalled probe: %w", err)
	}

	v := &report.Verdict{
		Outcome:   report.OutcomeTerminationDefect,
		Stdout:    stdout.String(),
		BusyWait:  busy,
		ElapsedNS: time.Since(start).Nanoseconds(),
	}

	if grew := stdout.Len() - outBefore; grew > 0 {
		v.Detail = fmt.Sprintf("%d bytes of output during grace period", grew)
	}

	if err := cmd.Process.Kill(); err != nil {
		return nil, fmt.Errorf("failed to kill stalled probe: %w", err)
	}

	<-done

	return v, nil
}

// lockedBuffer is written by the child's stdout pipe goroutine and read by
// the stall sampler, hence the lock.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.Write(p)
}

func (b *lockedBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.Len()
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.String()
}
