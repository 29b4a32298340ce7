package loader

import (
	"testing"

	"github.com/ashenford/rvm32/binfmt"
	"github.com/ashenford/rvm32/encoder"
)

type fakeHost struct{}

func (fakeHost) Read() uint32       { return 0xFFFFFFFF }
func (fakeHost) Write(value uint32) {}

func TestLoadProgramPlacesSegmentsAndStartsAtResetPC(t *testing.T) {
	program := &encoder.Program{
		MemorySize: 0x2000,
		Segments: []encoder.Segment{
			{Addr: 0x1000, Data: []byte{0xAA, 0xBB, 0xCC, 0xDD}},
		},
	}

	machine, err := LoadProgram(program, fakeHost{})
	if err != nil {
		t.Fatalf("LoadProgram returned error: %v", err)
	}
	if machine.PC != 0x1000 {
		t.Errorf("PC = 0x%X, want 0x1000 (ResetPC)", machine.PC)
	}
	word, err := machine.Mem.ReadU32(0x1000)
	if err != nil {
		t.Fatalf("ReadU32 returned error: %v", err)
	}
	if word != 0xDDCCBBAA {
		t.Errorf("word at 0x1000 = 0x%08X, want 0xDDCCBBAA", word)
	}
}

func TestFromBytesMatchesLoadProgram(t *testing.T) {
	program := &encoder.Program{
		MemorySize: 0x2000,
		Segments: []encoder.Segment{
			{Addr: 0x1000, Data: []byte{1, 2, 3, 4}},
		},
	}
	data, err := binfmt.Serialize(program)
	if err != nil {
		t.Fatalf("Serialize returned error: %v", err)
	}

	machine, err := FromBytes(data, fakeHost{})
	if err != nil {
		t.Fatalf("FromBytes returned error: %v", err)
	}
	if machine.Mem.Len() != 0x2000 {
		t.Errorf("memory length = 0x%X, want 0x2000", machine.Mem.Len())
	}
	b, err := machine.Mem.ReadU8(0x1002)
	if err != nil {
		t.Fatalf("ReadU8 returned error: %v", err)
	}
	if b != 3 {
		t.Errorf("byte at 0x1002 = %d, want 3", b)
	}
}
