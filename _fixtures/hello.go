package main

import (
	"fmt"
	"runtime"
)

func init() {
	runtime.LockOSThread()
}

func main() {
	fmt.Println("hello, world")
}
