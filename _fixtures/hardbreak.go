package main

import (
	"os"
	"runtime"
)

func init() {
	runtime.LockOSThread()
}

func main() {
	runtime.Breakpoint()
	os.Exit(5)
}
