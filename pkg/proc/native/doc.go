// Package native implements proc.Process for processes running on the
// local machine, using ptrace(2). Only linux/amd64 is supported, on other
// platforms Launch and Attach return proc.ErrNativeBackendDisabled.
//
// Every ptrace request is issued from a single goroutine locked to its OS
// thread, the kernel only accepts requests from the thread that became the
// tracer.
package native
