//go:build linux && amd64

package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/tcassar-diss/abiprobe/abi"
	"github.com/tcassar-diss/abiprobe/witness"
)

func main() {
	prodLogger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("failed to get logger: %v", err)
	}

	logger := prodLogger.Sugar()

	if len(os.Args) < 2 {
		logger.Fatalw("usage: witness <executable> [args...]")
	}

	conv := abi.Native
	if os.Getenv("ABIPROBE_CONVENTION") == "observed" {
		conv = abi.Observed
	}

	w := witness.NewPtraceWitness(logger, conv, 2*time.Second)

	// the kernel-side counter needs privileges the ptrace path doesn't
	if os.Geteuid() == 0 {
		counter, err := witness.NewSyscallCounter(logger)
		if err != nil {
			logger.Fatalw("failed to build kernel counter", "err", err)
		}
		defer counter.Close()

		w = w.WithCounter(counter)
	} else {
		logger.Infow("not root: skipping the kernel-side counter")
	}

	rep, err := w.Run(os.Args[1], os.Args[2:]...)
	if err != nil {
		logger.Fatalw("failed to trace", "executable", os.Args[1], "err", err)
	}

	bts, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		logger.Fatalw("failed to marshal report", "err", err)
	}

	fmt.Println(string(bts))
}
