package procstat

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

var ErrStatInvalid = errors.New("procfs stat line invalid")

// Stat is the slice of /proc/<pid>/stat the harness cares about: whether the
// process is still runnable, and how much CPU it has burned.
type Stat struct {
	Pid   int32
	Comm  string
	State byte

	// Utime and Stime are in clock ticks, as procfs reports them. Only
	// their growth matters here, so they are never converted.
	Utime uint64
	Stime uint64
}

// CPUTime is the total ticks the process has spent on-CPU.
func (s *Stat) CPUTime() uint64 {
	return s.Utime + s.Stime
}

// ProcStat reads process scheduler state out of procfs.
type ProcStat struct {
	logger      *zap.SugaredLogger
	pathbuilder func(int32) string
}

// NewProcStat is configured to look in /proc/pid/stat.
func NewProcStat(logger *zap.SugaredLogger) ProcStat {
	return ProcStat{
		logger:      logger,
		pathbuilder: func(pid int32) string { return fmt.Sprintf("/proc/%d/stat", pid) },
	}
}

// NewTestProcStat is configured with a Nop logger and a pathbuilder.
// pathbuilder specifies where to look for stat files to read.
func NewTestProcStat(pathbuilder func(int32) string) ProcStat {
	return ProcStat{
		logger:      zap.NewNop().Sugar(),
		pathbuilder: pathbuilder,
	}
}

// Read parses the stat line for a given PID. Always a fresh read: scheduler
// state is useless stale.
func (p *ProcStat) Read(pid int32) (*Stat, error) {
	fp := p.pathbuilder(pid)

	bts, err := os.ReadFile(fp)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", fp, err)
	}

	return p.parseLine(strings.TrimSpace(string(bts)))
}

func (p *ProcStat) parseLine(l string) (*Stat, error) {
	// comm is parenthesised and may itself contain spaces or parentheses,
	// so split on the last ')' rather than field-splitting the whole line.
	lparen := strings.IndexByte(l, '(')
	rparen := strings.LastIndexByte(l, ')')

	if lparen < 0 || rparen < 0 || rparen < lparen {
		return nil, fmt.Errorf("%w: comm field not parenthesised", ErrStatInvalid)
	}

	pid, err := strconv.ParseInt(strings.TrimSpace(l[:lparen]), 10, 32)
	if err != nil {
		return nil, fmt.Errorf("failed to parse pid field: %w", err)
	}

	rest := strings.Fields(l[rparen+1:])

	// state ppid pgrp session tty_nr tpgid flags minflt cminflt majflt
	// cmajflt utime stime: utime and stime are fields 11 and 12 past comm.
	if len(rest) < 13 {
		return nil, fmt.Errorf("%w: %d fields after comm, need 13", ErrStatInvalid, len(rest))
	}

	utime, err := strconv.ParseUint(rest[11], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse utime: %w", err)
	}

	stime, err := strconv.ParseUint(rest[12], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse stime: %w", err)
	}

	return &Stat{
		Pid:   int32(pid),
		Comm:  l[lparen+1 : rparen],
		State: rest[0][0],
		Utime: utime,
		Stime: stime,
	}, nil
}

// Busy reports whether a process looks stuck in a busy-wait: runnable at
// both ends of the interval with CPU time strictly increasing. A process
// blocked in the kernel accrues no CPU time, so this distinguishes a spin
// loop from an ordinary hang.
func (p *ProcStat) Busy(pid int32, interval time.Duration) (bool, error) {
	before, err := p.Read(pid)
	if err != nil {
		return false, fmt.Errorf("failed to sample process state: %w", err)
	}

	time.Sleep(interval)

	after, err := p.Read(pid)
	if err != nil {
		return false, fmt.Errorf("failed to resample process state: %w", err)
	}

	if before.State != 'R' || after.State != 'R' {
		return false, nil
	}

	busy := after.CPUTime() > before.CPUTime()

	if busy {
		p.logger.Warnw(
			"process is pegging a cpu",
			"pid", pid,
			"comm", after.Comm,
			"ticks", after.CPUTime()-before.CPUTime(),
		)
	}

	return busy, nil
}
