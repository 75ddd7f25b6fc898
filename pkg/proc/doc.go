// Package proc is a low-level package that provides methods to manipulate
// the process we are debugging.
//
// proc implements the debugger core on top of a Process backend:
//   - a breakpoint table that patches and restores instruction bytes
//   - continue and single-instruction step, stepping transparently over
//     the breakpoint under the program counter
//   - register and memory access, including a logical view of memory that
//     hides the debugger's own trap instructions
//
// The backend that talks to the operating system lives in proc/native.
package proc
