//go:build amd64

package abi

// Native is the standard numbering for this architecture.
var Native = Convention{
	Name:      "linux-amd64",
	Getpid:    39,
	Write:     1,
	Exit:      60,
	ExitGroup: 231,
}
