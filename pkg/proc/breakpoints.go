package proc

import (
	"bytes"
	"fmt"
	"sort"
)

// Breakpoint represents a physical breakpoint. Stores information on the break
// point including the byte of data that originally was stored at that
// address.
type Breakpoint struct {
	ID           int    // Monotonically increasing ID, unique within one BreakpointMap.
	Addr         uint64 // Address breakpoint is set for.
	OriginalData []byte // The data we replace with the breakpoint instruction.

	// Enabled is the state requested by the user, Installed is whether the
	// breakpoint instruction is currently written in memory. They only
	// differ while the execution engine steps over the breakpoint.
	Enabled   bool
	Installed bool

	TotalHitCount uint64 // Number of times a breakpoint has been reached
}

func (bp *Breakpoint) String() string {
	state := "enabled"
	if !bp.Enabled {
		state = "disabled"
	}
	return fmt.Sprintf("Breakpoint %d at %#x %s (%d)", bp.ID, bp.Addr, state, bp.TotalHitCount)
}

// DuplicateError is returned when trying to set a breakpoint at an address
// that already has a breakpoint set for it. The existing breakpoint is
// returned along with it.
type DuplicateError struct {
	ID   int
	Addr uint64
}

func (err *DuplicateError) Error() string {
	return fmt.Sprintf("breakpoint %d already exists at %#x", err.ID, err.Addr)
}

// NotFoundError is returned when trying to
// use a breakpoint that does not exist.
type NotFoundError struct {
	ID   int
	Addr uint64
}

func (err *NotFoundError) Error() string {
	if err.ID > 0 {
		return fmt.Sprintf("no breakpoint with id %d", err.ID)
	}
	return fmt.Sprintf("no breakpoint at %#x", err.Addr)
}

// BreakpointMap is the breakpoint table of one process. It owns the saved
// instruction bytes and keeps them consistent with what is written in the
// process memory.
type BreakpointMap struct {
	M map[uint64]*Breakpoint

	mem  MemoryReadWriter
	arch *Arch

	breakpointIDCounter int
}

// NewBreakpointMap creates a new BreakpointMap patching mem.
func NewBreakpointMap(mem MemoryReadWriter, arch *Arch) *BreakpointMap {
	return &BreakpointMap{
		M:    make(map[uint64]*Breakpoint),
		mem:  mem,
		arch: arch,
	}
}

// Set saves the instruction bytes at addr and writes the breakpoint
// instruction in their place. If a breakpoint already exists at addr it is
// returned unchanged together with a *DuplicateError.
func (bpmap *BreakpointMap) Set(addr uint64) (*Breakpoint, error) {
	if bp, ok := bpmap.M[addr]; ok {
		return bp, &DuplicateError{ID: bp.ID, Addr: addr}
	}

	originalData := make([]byte, bpmap.arch.BreakpointSize())
	if err := readFull(bpmap.mem, originalData, addr); err != nil {
		return nil, err
	}

	bp := &Breakpoint{
		ID:           bpmap.breakpointIDCounter + 1,
		Addr:         addr,
		OriginalData: originalData,
		Enabled:      true,
	}
	if err := bpmap.install(bp); err != nil {
		return nil, err
	}
	bpmap.breakpointIDCounter++
	bpmap.M[addr] = bp
	return bp, nil
}

// Remove restores the original instruction bytes of the breakpoint with
// the given id and deletes it.
func (bpmap *BreakpointMap) Remove(id int) (*Breakpoint, error) {
	bp := bpmap.FindID(id)
	if bp == nil {
		return nil, &NotFoundError{ID: id}
	}
	if err := bpmap.uninstall(bp); err != nil {
		return nil, err
	}
	delete(bpmap.M, bp.Addr)
	return bp, nil
}

// Enable writes the breakpoint instruction back for a disabled breakpoint.
// Enabling an enabled breakpoint does nothing.
func (bpmap *BreakpointMap) Enable(id int) (*Breakpoint, error) {
	bp := bpmap.FindID(id)
	if bp == nil {
		return nil, &NotFoundError{ID: id}
	}
	if bp.Enabled {
		return bp, nil
	}
	if err := bpmap.install(bp); err != nil {
		return nil, err
	}
	bp.Enabled = true
	return bp, nil
}

// Disable restores the original instruction bytes, keeping the breakpoint
// so that it can be enabled again. Disabling a disabled breakpoint does
// nothing.
func (bpmap *BreakpointMap) Disable(id int) (*Breakpoint, error) {
	bp := bpmap.FindID(id)
	if bp == nil {
		return nil, &NotFoundError{ID: id}
	}
	if !bp.Enabled {
		return bp, nil
	}
	if err := bpmap.uninstall(bp); err != nil {
		return nil, err
	}
	bp.Enabled = false
	return bp, nil
}

// Find returns the breakpoint set at addr.
func (bpmap *BreakpointMap) Find(addr uint64) (*Breakpoint, bool) {
	bp, ok := bpmap.M[addr]
	return bp, ok
}

// FindID returns the breakpoint with the given id or nil.
func (bpmap *BreakpointMap) FindID(id int) *Breakpoint {
	for _, bp := range bpmap.M {
		if bp.ID == id {
			return bp
		}
	}
	return nil
}

// FindInstalled returns the breakpoint whose instruction is currently
// written at addr.
func (bpmap *BreakpointMap) FindInstalled(addr uint64) (*Breakpoint, bool) {
	bp, ok := bpmap.M[addr]
	if !ok || !bp.Installed {
		return nil, false
	}
	return bp, true
}

// List returns all breakpoints sorted by id.
func (bpmap *BreakpointMap) List() []*Breakpoint {
	r := make([]*Breakpoint, 0, len(bpmap.M))
	for _, bp := range bpmap.M {
		r = append(r, bp)
	}
	sort.Slice(r, func(i, j int) bool { return r[i].ID < r[j].ID })
	return r
}

// LogicalRead reads memory like ReadMemory but replaces every byte
// belonging to an installed breakpoint instruction with the original byte
// it replaced.
func (bpmap *BreakpointMap) LogicalRead(addr uint64, length int) ([]byte, error) {
	if length < 0 {
		return nil, &AccessError{Op: "read memory", Addr: addr, Err: ErrNegativeLength}
	}
	buf := make([]byte, length)
	if length == 0 {
		return buf, nil
	}
	if err := readFull(bpmap.mem, buf, addr); err != nil {
		return nil, err
	}
	bpmap.unpatch(buf, addr)
	return buf, nil
}

// unpatch replaces installed breakpoint instructions in buf, a copy of the
// memory at addr, with the original data.
func (bpmap *BreakpointMap) unpatch(buf []byte, addr uint64) {
	end := addr + uint64(len(buf))
	for _, bp := range bpmap.M {
		if !bp.Installed {
			continue
		}
		for i := range bp.OriginalData {
			a := bp.Addr + uint64(i)
			if a >= addr && a < end {
				buf[a-addr] = bp.OriginalData[i]
			}
		}
	}
}

// absorbWrite updates the saved data of every installed breakpoint
// overlapping a write of data at addr and writes the breakpoint
// instruction back over it, so that a memory write never silently removes
// a breakpoint.
func (bpmap *BreakpointMap) absorbWrite(addr uint64, data []byte) error {
	end := addr + uint64(len(data))
	for _, bp := range bpmap.M {
		overlap := false
		for i := range bp.OriginalData {
			a := bp.Addr + uint64(i)
			if a >= addr && a < end {
				bp.OriginalData[i] = data[a-addr]
				overlap = true
			}
		}
		if overlap && bp.Installed {
			if err := writeFull(bpmap.mem, bp.Addr, bpmap.arch.BreakpointInstruction()); err != nil {
				return err
			}
		}
	}
	return nil
}

// RestoreAll writes back the original data of every installed breakpoint.
// The table is kept, breakpoints that were enabled stay enabled.
func (bpmap *BreakpointMap) RestoreAll() error {
	var firstErr error
	for _, bp := range bpmap.List() {
		if err := bpmap.uninstall(bp); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Clear forgets every breakpoint without touching memory. It is used when
// the process is gone.
func (bpmap *BreakpointMap) Clear() {
	bpmap.M = make(map[uint64]*Breakpoint)
}

func (bpmap *BreakpointMap) install(bp *Breakpoint) error {
	if bp.Installed {
		return nil
	}
	if err := writeFull(bpmap.mem, bp.Addr, bpmap.arch.BreakpointInstruction()); err != nil {
		return err
	}
	bp.Installed = true
	return nil
}

func (bpmap *BreakpointMap) uninstall(bp *Breakpoint) error {
	if !bp.Installed {
		return nil
	}
	if err := writeFull(bpmap.mem, bp.Addr, bp.OriginalData); err != nil {
		return err
	}
	bp.Installed = false
	return nil
}

// isBreakpointInstruction reports whether buf starts with the breakpoint
// instruction.
func (bpmap *BreakpointMap) isBreakpointInstruction(buf []byte) bool {
	return bytes.HasPrefix(buf, bpmap.arch.BreakpointInstruction())
}
