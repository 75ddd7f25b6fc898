//go:build !linux || !amd64

package native

import (
	"github.com/go-delve/zdbg/pkg/proc"
)

// Launch returns ErrNativeBackendDisabled.
func Launch(_ []string, _ string, _ proc.LaunchFlags, _ string) (*proc.Target, error) {
	return nil, proc.ErrNativeBackendDisabled
}

// Attach returns ErrNativeBackendDisabled.
func Attach(_ int) (*proc.Target, error) {
	return nil, proc.ErrNativeBackendDisabled
}
