//go:build linux && amd64

package witness

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/tcassar-diss/abiprobe/abi"
)

// PtraceWitness steps a child through every syscall stop and reads the
// register file at each entry. It follows the main thread only, which is
// where the probe's whole sequence runs.
type PtraceWitness struct {
	logger  *zap.SugaredLogger
	conv    abi.Convention
	grace   time.Duration
	counter *SyscallCounter
}

func NewPtraceWitness(logger *zap.SugaredLogger, conv abi.Convention, grace time.Duration) *PtraceWitness {
	return &PtraceWitness{
		logger: logger,
		conv:   conv,
		grace:  grace,
	}
}

// WithCounter adds a kernel-side syscall counter as a cross-check on the
// ptrace view. The counter attaches while the child is still stopped at
// exec, so it misses nothing the tracer sees.
func (w *PtraceWitness) WithCounter(c *SyscallCounter) *PtraceWitness {
	w.counter = c

	return w
}

// Run traces the executable to completion, or to the stalled state if its
// termination call returns control.
func (w *PtraceWitness) Run(executable string, args ...string) (*Report, error) {
	// Ptrace requests must come from the thread that attached.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	cmd := exec.Command(executable, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Ptrace: true}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start executable: %w", err)
	}

	pid := cmd.Process.Pid

	// the child stops with SIGTRAP before its first instruction
	var ws unix.WaitStatus
	if _, err := unix.Wait4(pid, &ws, 0, nil); err != nil {
		return nil, fmt.Errorf("failed to wait for exec stop: %w", err)
	}

	if err := unix.PtraceSetOptions(pid, unix.PTRACE_O_TRACESYSGOOD); err != nil {
		return nil, fmt.Errorf("failed to set ptrace options: %w", err)
	}

	if w.counter != nil {
		if err := w.counter.Watch(pid); err != nil {
			return nil, fmt.Errorf("failed to attach kernel counter: %w", err)
		}
	}

	w.logger.Infow("tracing probe syscalls", "executable", executable, "pid", pid)

	rep, err := w.step(cmd, pid)
	if err != nil {
		return nil, err
	}

	if w.counter != nil {
		rep.KernelCounts, err = w.counter.Counts()
		if err != nil {
			return nil, fmt.Errorf("failed to read kernel counts: %w", err)
		}
	}

	return rep, nil
}

func (w *PtraceWitness) step(cmd *exec.Cmd, pid int) (*Report, error) {
	rep := &Report{Counts: make(map[uint64]uint64)}

	var (
		insyscall  bool
		terminated bool
		sig        int
	)

	for {
		if err := unix.PtraceSyscall(pid, sig); err != nil {
			return nil, fmt.Errorf("failed to resume child: %w", err)
		}

		sig = 0

		ws, stalled, err := w.waitStop(pid, terminated)
		if err != nil {
			return nil, fmt.Errorf("failed to wait on child: %w", err)
		}

		if stalled {
			rep.Stalled = true

			w.logger.Warnw("probe stalled after termination call, killing it", "pid", pid)

			if err := cmd.Process.Kill(); err != nil {
				return nil, fmt.Errorf("failed to kill stalled child: %w", err)
			}

			if _, err := unix.Wait4(pid, &ws, 0, nil); err != nil {
				return nil, fmt.Errorf("failed to reap stalled child: %w", err)
			}

			return rep, nil
		}

		if ws.Exited() {
			rep.Exited = true
			rep.ExitStatus = ws.ExitStatus()

			return rep, nil
		}

		if ws.Signaled() {
			return rep, nil
		}

		if !ws.Stopped() {
			continue
		}

		// TRACESYSGOOD marks syscall stops by setting bit 7 of the signal
		if ws.StopSignal() != unix.SIGTRAP|0x80 {
			sig = int(ws.StopSignal())

			continue
		}

		insyscall = !insyscall
		if !insyscall {
			continue
		}

		var regs unix.PtraceRegs
		if err := unix.PtraceGetRegs(pid, &regs); err != nil {
			return nil, fmt.Errorf("failed to read registers at syscall entry: %w", err)
		}

		w.record(rep, &regs, &terminated)
	}
}

// waitStop blocks for the next child stop. Once the termination call has
// been issued nothing further should ever happen, so from then on the wait
// is bounded by the grace period: a child that stays silent past it is
// spinning in the fallback halt loop.
func (w *PtraceWitness) waitStop(pid int, bounded bool) (unix.WaitStatus, bool, error) {
	var ws unix.WaitStatus

	if !bounded {
		_, err := unix.Wait4(pid, &ws, 0, nil)
		return ws, false, err
	}

	deadline := time.Now().Add(w.grace)

	for {
		n, err := unix.Wait4(pid, &ws, unix.WNOHANG, nil)
		if err != nil {
			return ws, false, err
		}

		if n == pid {
			return ws, false, nil
		}

		if time.Now().After(deadline) {
			return ws, true, nil
		}

		time.Sleep(10 * time.Millisecond)
	}
}

func (w *PtraceWitness) record(rep *Report, regs *unix.PtraceRegs, terminated *bool) {
	nr := abi.CallNumber(regs)
	args := abi.CallArgs(regs)

	if *terminated {
		rep.AfterTermination++
	}

	rep.Counts[nr]++

	switch {
	case nr == w.conv.Write:
		rep.Writes = append(rep.Writes, WriteCall{FD: args[0], Len: args[2]})
	case w.conv.Terminates(nr):
		rep.Terminations = append(rep.Terminations, Termination{Nr: nr, Status: args[0]})

		*terminated = true
	}
}
