package binfmt

import (
	"bytes"
	"testing"

	"github.com/ashenford/rvm32/encoder"
)

func TestSerializeFromBytesRoundTrip(t *testing.T) {
	program := &encoder.Program{
		MemorySize: 0x2000,
		Segments: []encoder.Segment{
			{Addr: 0x1000, Data: []byte{0x01, 0x02, 0x03, 0x04}},
			{Addr: 0x1800, Data: []byte{0xAA, 0xBB}},
		},
	}

	out, err := Serialize(program)
	if err != nil {
		t.Fatalf("Serialize returned error: %v", err)
	}

	file, err := FromBytes(out)
	if err != nil {
		t.Fatalf("FromBytes returned error: %v", err)
	}
	if file.MemorySize() != program.MemorySize {
		t.Errorf("MemorySize = 0x%X, want 0x%X", file.MemorySize(), program.MemorySize)
	}
	if file.SegmentCount() != 2 {
		t.Fatalf("SegmentCount() = %d, want 2", file.SegmentCount())
	}

	segments := file.Segments()
	if segments[0].Addr != 0x1000 || !bytes.Equal(segments[0].Data, program.Segments[0].Data) {
		t.Errorf("segment 0 = %+v, want addr 0x1000 data %v", segments[0], program.Segments[0].Data)
	}
	if segments[1].Addr != 0x1800 || !bytes.Equal(segments[1].Data, program.Segments[1].Data) {
		t.Errorf("segment 1 = %+v, want addr 0x1800 data %v", segments[1], program.Segments[1].Data)
	}
}

func TestToMemoryPlacesSegmentsAtTheirAddresses(t *testing.T) {
	program := &encoder.Program{
		MemorySize: 0x10,
		Segments: []encoder.Segment{
			{Addr: 0x4, Data: []byte{0xDE, 0xAD}},
		},
	}
	out, err := Serialize(program)
	if err != nil {
		t.Fatalf("Serialize returned error: %v", err)
	}
	file, err := FromBytes(out)
	if err != nil {
		t.Fatalf("FromBytes returned error: %v", err)
	}
	mem, err := file.ToMemory()
	if err != nil {
		t.Fatalf("ToMemory returned error: %v", err)
	}
	if len(mem) != 0x10 {
		t.Fatalf("memory length = %d, want 16", len(mem))
	}
	if mem[4] != 0xDE || mem[5] != 0xAD {
		t.Errorf("mem[4:6] = %v, want [0xDE 0xAD]", mem[4:6])
	}
}

func TestFromBytesRejectsBadMagic(t *testing.T) {
	data := make([]byte, fileHeaderSize)
	copy(data, []byte{0, 0, 0, 0})
	_, err := FromBytes(data)
	berr, ok := err.(*Error)
	if !ok || berr.Kind != InvalidFormat {
		t.Fatalf("got %v, want *Error{Kind: InvalidFormat}", err)
	}
}

func TestFromBytesRejectsShortFile(t *testing.T) {
	_, err := FromBytes([]byte{0x80, 'B', 'I'})
	berr, ok := err.(*Error)
	if !ok || berr.Kind != InvalidFormat {
		t.Fatalf("got %v, want *Error{Kind: InvalidFormat}", err)
	}
}

func TestFromBytesRejectsOffsetRangePastEndOfFile(t *testing.T) {
	program := &encoder.Program{
		MemorySize: 0x10,
		Segments:   []encoder.Segment{{Addr: 0, Data: []byte{1, 2, 3, 4}}},
	}
	out, err := Serialize(program)
	if err != nil {
		t.Fatalf("Serialize returned error: %v", err)
	}
	truncated := out[:len(out)-2]
	_, err = FromBytes(truncated)
	if err == nil {
		t.Fatal("expected an error parsing a truncated object file")
	}
}
