package linutil

import (
	"encoding/binary"
	"testing"
)

func auxvOf(pairs ...uint64) []byte {
	buf := make([]byte, 8*len(pairs))
	for i, v := range pairs {
		binary.LittleEndian.PutUint64(buf[i*8:], v)
	}
	return buf
}

func TestEntryPointFromAuxv(t *testing.T) {
	tests := []struct {
		name string
		auxv []byte
		want uint64
	}{
		{"entry", auxvOf(6, 4096, _AT_ENTRY, 0x555555554000, _AT_NULL, 0), 0x555555554000},
		{"missing", auxvOf(6, 4096, _AT_NULL, 0), 0},
		{"truncated", auxvOf(6, 4096)[:12], 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := EntryPointFromAuxv(tc.auxv, 8); got != tc.want {
				t.Errorf("got %#x, want %#x", got, tc.want)
			}
		})
	}
}
