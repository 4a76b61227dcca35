package abi_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tcassar-diss/abiprobe/abi"
)

func TestObservedNumbering(t *testing.T) {
	require.EqualValues(t, 39, abi.Observed.Getpid)
	require.EqualValues(t, 1, abi.Observed.Write)

	// termination dispatches on 0 under the observed convention; this is
	// the behaviour under test, not a typo (see the note on abi.Observed)
	require.EqualValues(t, 0, abi.Observed.Exit)
	require.Zero(t, abi.Observed.ExitGroup)
}

func TestTerminates(t *testing.T) {
	cases := []struct {
		name     string
		conv     abi.Convention
		nr       uint64
		expected bool
	}{
		{name: "observed exit", conv: abi.Observed, nr: 0, expected: true},
		{name: "observed write is not termination", conv: abi.Observed, nr: 1, expected: false},
		{name: "observed ignores the standard number", conv: abi.Observed, nr: 60, expected: false},
		{
			name:     "exit group counts when the convention has one",
			conv:     abi.Convention{Exit: 60, ExitGroup: 231},
			nr:       231,
			expected: true,
		},
		{
			name:     "zero exit group is not a number",
			conv:     abi.Convention{Exit: 60},
			nr:       0,
			expected: false,
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			require.Equal(t, c.expected, c.conv.Terminates(c.nr))
		})
	}
}
