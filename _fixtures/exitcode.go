package main

import (
	"os"
	"runtime"
)

func init() {
	runtime.LockOSThread()
}

//go:noinline
func answer() int {
	return 3
}

func main() {
	os.Exit(answer())
}
