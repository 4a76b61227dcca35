//go:build arm64

package abi

// Native is the standard numbering for this architecture.
var Native = Convention{
	Name:      "linux-arm64",
	Getpid:    172,
	Write:     64,
	Exit:      93,
	ExitGroup: 94,
}
