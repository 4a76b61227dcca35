//go:build !(linux && amd64)

package main

import "log"

func main() {
	log.Fatal("the ptrace witness only runs on linux/amd64")
}
