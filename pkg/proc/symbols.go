package proc

import (
	"debug/elf"
	"fmt"
)

// SymbolNotFoundError is returned when a symbol can not be resolved.
type SymbolNotFoundError struct {
	Name string
}

func (err *SymbolNotFoundError) Error() string {
	return fmt.Sprintf("could not find symbol %s", err.Name)
}

// FindSymbol returns the address of the symbol called name in the ELF
// symbol table of the executable, relocated by the load base.
func (t *Target) FindSymbol(name string) (uint64, error) {
	f, err := elf.Open(t.path)
	if err != nil {
		return 0, fmt.Errorf("could not open executable: %w", err)
	}
	defer f.Close()
	syms, err := f.Symbols()
	if err != nil && err != elf.ErrNoSymbols {
		return 0, err
	}
	dynsyms, _ := f.DynamicSymbols()
	for _, sym := range append(syms, dynsyms...) {
		if sym.Name == name && sym.Value != 0 {
			return sym.Value + t.LoadBase(), nil
		}
	}
	return 0, &SymbolNotFoundError{Name: name}
}
