package main

import (
	"github.com/tcassar-diss/abiprobe/abi"
	"github.com/tcassar-diss/abiprobe/probe"
)

// No logger, no flags, no env: the probe's only permitted observable effect
// is its single diagnostic write, so main stays empty-handed.
func main() {
	probe.NewRawSequence(abi.Observed).Run()
}
