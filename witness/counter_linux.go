//go:build linux

package witness

import (
	"errors"
	"fmt"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/asm"
	"github.com/cilium/ebpf/link"
	"github.com/cilium/ebpf/rlimit"
	"go.uber.org/zap"
)

var ErrAlreadyWatching = errors.New("counter already attached")

// SyscallCounter counts every syscall the watched process issues, straight
// from the sys_enter raw tracepoint. It sees all threads and costs the
// child nothing, which makes it a good cross-check on the ptrace witness;
// the trade is that it needs root.
type SyscallCounter struct {
	logger *zap.SugaredLogger
	counts *ebpf.Map
	target *ebpf.Map
	prog   *ebpf.Program
	tp     link.Link
}

func NewSyscallCounter(logger *zap.SugaredLogger) (*SyscallCounter, error) {
	if err := rlimit.RemoveMemlock(); err != nil {
		return nil, fmt.Errorf("are you root? failed to remove memlock: %w", err)
	}

	counts, err := ebpf.NewMap(&ebpf.MapSpec{
		Name:       "abiprobe_counts",
		Type:       ebpf.Hash,
		KeySize:    8,
		ValueSize:  8,
		MaxEntries: 512,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create counts map: %w", err)
	}

	target, err := ebpf.NewMap(&ebpf.MapSpec{
		Name:       "abiprobe_target",
		Type:       ebpf.Array,
		KeySize:    4,
		ValueSize:  8,
		MaxEntries: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create target map: %w", err)
	}

	prog, err := ebpf.NewProgram(&ebpf.ProgramSpec{
		Name:         "abiprobe_sys_enter",
		Type:         ebpf.RawTracepoint,
		License:      "GPL",
		Instructions: countInstructions(counts, target),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load counting program: %w", err)
	}

	return &SyscallCounter{
		logger: logger,
		counts: counts,
		target: target,
		prog:   prog,
	}, nil
}

// Watch filters the counter to one tgid and attaches it to sys_enter.
func (c *SyscallCounter) Watch(pid int) error {
	if c.tp != nil {
		return ErrAlreadyWatching
	}

	var zero uint32

	if err := c.target.Put(zero, uint64(pid)); err != nil {
		return fmt.Errorf("failed to register watched pid: %w", err)
	}

	tp, err := link.AttachRawTracepoint(link.RawTracepointOptions{
		Name:    "sys_enter",
		Program: c.prog,
	})
	if err != nil {
		return fmt.Errorf("failed to attach to raw tracepoint: %w", err)
	}

	c.tp = tp

	c.logger.Infow("counting syscalls", "pid", pid)

	return nil
}

// Counts returns a snapshot of syscall number -> invocation count.
func (c *SyscallCounter) Counts() (map[uint64]uint64, error) {
	out := make(map[uint64]uint64)

	var k, v uint64

	iter := c.counts.Iterate()
	for iter.Next(&k, &v) {
		out[k] = v
	}

	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate counts map: %w", err)
	}

	return out, nil
}

func (c *SyscallCounter) Close() error {
	if c.tp != nil {
		if err := c.tp.Close(); err != nil {
			c.logger.Errorw("failed to detach tracepoint", "err", err)
		}
	}

	if err := c.prog.Close(); err != nil {
		return fmt.Errorf("failed to close program: %w", err)
	}

	if err := c.counts.Close(); err != nil {
		return fmt.Errorf("failed to close counts map: %w", err)
	}

	if err := c.target.Close(); err != nil {
		return fmt.Errorf("failed to close target map: %w", err)
	}

	return nil
}

// countInstructions assembles the tracepoint program by hand. For a
// raw_tracepoint on sys_enter the context holds (pt_regs *, syscall id), so
// the id sits 8 bytes into the args array.
func countInstructions(counts, target *ebpf.Map) asm.Instructions {
	return asm.Instructions{
		// r6 = syscall number
		asm.LoadMem(asm.R6, asm.R1, 8, asm.DWord),

		// r7 = tgid of the calling process
		asm.FnGetCurrentPidTgid.Call(),
		asm.Mov.Reg(asm.R7, asm.R0),
		asm.RSh.Imm(asm.R7, 32),

		// bail unless the caller is the watched pid
		asm.StoreImm(asm.RFP, -4, 0, asm.Word),
		asm.Mov.Reg(asm.R2, asm.RFP),
		asm.Add.Imm(asm.R2, -4),
		asm.LoadMapPtr(asm.R1, target.FD()),
		asm.FnMapLookupElem.Call(),
		asm.JEq.Imm(asm.R0, 0, "out"),
		asm.LoadMem(asm.R8, asm.R0, 0, asm.DWord),
		asm.JNE.Reg(asm.R7, asm.R8, "out"),

		// counts[nr]++, initialising the slot on first sight
		asm.StoreMem(asm.RFP, -16, asm.R6, asm.DWord),
		asm.Mov.Reg(asm.R2, asm.RFP),
		asm.Add.Imm(asm.R2, -16),
		asm.LoadMapPtr(asm.R1, counts.FD()),
		asm.FnMapLookupElem.Call(),
		asm.JEq.Imm(asm.R0, 0, "init"),
		asm.Mov.Imm(asm.R1, 1),
		asm.StoreXAdd(asm.R0, asm.R1, asm.DWord),
		asm.Ja.Label("out"),

		asm.StoreImm(asm.RFP, -24, 1, asm.DWord).WithSymbol("init"),
		asm.Mov.Reg(asm.R2, asm.RFP),
		asm.Add.Imm(asm.R2, -16),
		asm.Mov.Reg(asm.R3, asm.RFP),
		asm.Add.Imm(asm.R3, -24),
		asm.LoadMapPtr(asm.R1, counts.FD()),
		asm.Mov.Imm(asm.R4, 0),
		asm.FnMapUpdateElem.Call(),

		asm.Mov.Imm(asm.R0, 0).WithSymbol("out"),
		asm.Return(),
	}
}
