package main

import (
	"fmt"
	"os"
	"runtime"
	"time"
)

func init() {
	runtime.LockOSThread()
}

func main() {
	fmt.Println(os.Getpid())
	for {
		time.Sleep(10 * time.Millisecond)
	}
}
