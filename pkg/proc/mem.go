package proc

import (
	"errors"
	"fmt"
)

// MemoryReader is like io.ReaderAt, but the offset is a uint64 so that it
// can address all of 64-bit memory.
// Redundant with memoryReadWriter but more easily suited to working with
// the standard io package.
type MemoryReader interface {
	// ReadMemory is just like io.ReaderAt.ReadAt.
	ReadMemory(buf []byte, addr uint64) (n int, err error)
}

// MemoryReadWriter is an interface for reading or writing to
// the targets memory. This allows us to read from the actual
// target memory or possibly a cache.
type MemoryReadWriter interface {
	MemoryReader
	WriteMemory(addr uint64, data []byte) (written int, err error)
}

// ErrNegativeLength is wrapped by the AccessError returned for reads with a
// negative length.
var ErrNegativeLength = errors.New("negative length")

// AccessError is returned when a register or memory operation is not valid
// in the current state of the target or for the requested address range.
type AccessError struct {
	Op   string
	Addr uint64
	Len  int
	Err  error
}

func (err *AccessError) Error() string {
	if err.Len > 0 {
		return fmt.Sprintf("could not %s %d bytes at %#x: %v", err.Op, err.Len, err.Addr, err.Err)
	}
	return fmt.Sprintf("could not %s: %v", err.Op, err.Err)
}

func (err *AccessError) Unwrap() error {
	return err.Err
}

// readFull reads len(buf) bytes at addr, turning short reads into an
// AccessError.
func readFull(mem MemoryReader, buf []byte, addr uint64) error {
	n, err := mem.ReadMemory(buf, addr)
	if err == nil && n != len(buf) {
		err = fmt.Errorf("short read (%d bytes)", n)
	}
	if err != nil {
		return &AccessError{Op: "read memory", Addr: addr, Len: len(buf), Err: err}
	}
	return nil
}

func writeFull(mem MemoryReadWriter, addr uint64, data []byte) error {
	n, err := mem.WriteMemory(addr, data)
	if err == nil && n != len(data) {
		err = fmt.Errorf("short write (%d bytes)", n)
	}
	if err != nil {
		return &AccessError{Op: "write memory", Addr: addr, Len: len(data), Err: err}
	}
	return nil
}
