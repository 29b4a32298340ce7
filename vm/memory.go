package vm

import "encoding/binary"

// Memory is the VM's flat, byte-addressable address space. Unlike the
// teacher emulator's segmented/permissioned memory, every address in
// range is uniformly readable and writable; the only access this
// package itself refuses is one that runs past the end of the buffer.
type Memory struct {
	data []byte
}

// NewMemory allocates a zeroed memory image of size bytes.
func NewMemory(size uint32) *Memory {
	return &Memory{data: make([]byte, size)}
}

// NewMemoryFromBytes wraps an existing buffer (e.g. one assembled by
// binfmt.File.ToMemory) without copying it.
func NewMemoryFromBytes(data []byte) *Memory {
	return &Memory{data: data}
}

// Len reports the memory image's size in bytes.
func (m *Memory) Len() uint32 {
	return uint32(len(m.data))
}

// Bytes exposes the underlying buffer for read-only inspection (the
// terminal inspector's hex dump reads directly from this).
func (m *Memory) Bytes() []byte {
	return m.data
}

func inBounds(dataLen int, addr, size uint32) bool {
	end := uint64(addr) + uint64(size)
	return end <= uint64(dataLen)
}

// ReadU8 reads a single byte at addr.
func (m *Memory) ReadU8(addr uint32) (uint8, error) {
	if !inBounds(len(m.data), addr, 1) {
		return 0, &Error{Kind: InvalidAddr, Addr: addr}
	}
	return m.data[addr], nil
}

// WriteU8 writes a single byte at addr.
func (m *Memory) WriteU8(addr uint32, value uint8) error {
	if !inBounds(len(m.data), addr, 1) {
		return &Error{Kind: InvalidAddr, Addr: addr}
	}
	m.data[addr] = value
	return nil
}

// ReadU16 reads a little-endian halfword at addr. Misaligned addresses
// are permitted (only instruction fetch enforces alignment).
func (m *Memory) ReadU16(addr uint32) (uint16, error) {
	if !inBounds(len(m.data), addr, 2) {
		return 0, &Error{Kind: InvalidAddr, Addr: addr}
	}
	return binary.LittleEndian.Uint16(m.data[addr : addr+2]), nil
}

// WriteU16 writes a little-endian halfword at addr.
func (m *Memory) WriteU16(addr uint32, value uint16) error {
	if !inBounds(len(m.data), addr, 2) {
		return &Error{Kind: InvalidAddr, Addr: addr}
	}
	binary.LittleEndian.PutUint16(m.data[addr:addr+2], value)
	return nil
}

// ReadU32 reads a little-endian word at addr.
func (m *Memory) ReadU32(addr uint32) (uint32, error) {
	if !inBounds(len(m.data), addr, 4) {
		return 0, &Error{Kind: InvalidAddr, Addr: addr}
	}
	return binary.LittleEndian.Uint32(m.data[addr : addr+4]), nil
}

// WriteU32 writes a little-endian word at addr.
func (m *Memory) WriteU32(addr uint32, value uint32) error {
	if !inBounds(len(m.data), addr, 4) {
		return &Error{Kind: InvalidAddr, Addr: addr}
	}
	binary.LittleEndian.PutUint32(m.data[addr:addr+4], value)
	return nil
}

// LoadBytes copies data into memory starting at addr, as the loader does
// for each object-file segment.
func (m *Memory) LoadBytes(addr uint32, data []byte) error {
	if !inBounds(len(m.data), addr, uint32(len(data))) {
		return &Error{Kind: InvalidAddr, Addr: addr}
	}
	copy(m.data[addr:], data)
	return nil
}
