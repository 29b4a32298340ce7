// Package binfmt implements the VM's binary object file format: a small
// header giving the target memory size and segment count, followed by a
// fixed-size segment table, followed by the concatenated segment bytes.
// All multi-byte fields are little-endian.
package binfmt

import (
	"encoding/binary"
	"fmt"

	"github.com/ashenford/rvm32/encoder"
)

const (
	fileHeaderSize    = 16
	segmentHeaderSize = 12
)

var fileMagic = [4]byte{0x80, 'B', 'I', 'N'}

const fileVersion = 1

// ErrorKind enumerates why a byte slice failed to parse as an object
// file.
type ErrorKind int

const (
	InvalidFormat ErrorKind = iota
	UnsupportedVersion
	FileTooShort
	FileTooLarge
	InvalidOffsetRange
	InvalidAddrRange
)

// Error reports a malformed object file, carrying the offending
// offset/size/address when the kind is range-related.
type Error struct {
	Kind ErrorKind
	Addr uint32
	Size uint32
}

func (e *Error) Error() string {
	switch e.Kind {
	case InvalidFormat:
		return "invalid file format"
	case UnsupportedVersion:
		return "unsupported file version"
	case FileTooShort:
		return "file is too short"
	case FileTooLarge:
		return "file is too large"
	case InvalidOffsetRange:
		return fmt.Sprintf("invalid offset range (offset=0x%x, size=0x%x)", e.Addr, e.Size)
	case InvalidAddrRange:
		return fmt.Sprintf("invalid address range (addr=0x%x, size=0x%x)", e.Addr, e.Size)
	default:
		return "unknown binfmt error"
	}
}

// RawSegment is one segment table entry as stored on disk, before its
// data has been sliced out of the file.
type RawSegment struct {
	Offset uint32
	Addr   uint32
	Size   uint32
}

// File is a parsed, but not yet materialized, object file: the header
// fields plus borrowed views into the original byte slice for each
// segment's data.
type File struct {
	data        []byte
	memorySize  uint32
	rawSegments []RawSegment
}

// FromBytes validates data as an object file and returns a File whose
// segment views borrow directly from data.
func FromBytes(data []byte) (*File, error) {
	if len(data) < fileHeaderSize {
		return nil, &Error{Kind: InvalidFormat}
	}
	if data[0] != fileMagic[0] || data[1] != fileMagic[1] || data[2] != fileMagic[2] || data[3] != fileMagic[3] {
		return nil, &Error{Kind: InvalidFormat}
	}
	version := binary.LittleEndian.Uint32(data[4:8])
	if version != fileVersion {
		return nil, &Error{Kind: UnsupportedVersion}
	}
	memorySize := binary.LittleEndian.Uint32(data[8:12])
	segmentCount := binary.LittleEndian.Uint32(data[12:16])

	tableSize, ok := mulOverflow(segmentCount, segmentHeaderSize)
	if !ok {
		return nil, &Error{Kind: FileTooLarge}
	}
	tableEnd, ok := addOverflow(fileHeaderSize, tableSize)
	if !ok {
		return nil, &Error{Kind: FileTooLarge}
	}
	if uint64(len(data)) < uint64(tableEnd) {
		return nil, &Error{Kind: FileTooShort}
	}

	rawSegments := make([]RawSegment, segmentCount)
	for i := range rawSegments {
		base := fileHeaderSize + i*segmentHeaderSize
		offset := binary.LittleEndian.Uint32(data[base : base+4])
		addr := binary.LittleEndian.Uint32(data[base+4 : base+8])
		size := binary.LittleEndian.Uint32(data[base+8 : base+12])

		end, ok := addOverflow(offset, size)
		if !ok || uint64(len(data)) < uint64(end) {
			return nil, &Error{Kind: InvalidOffsetRange, Addr: offset, Size: size}
		}
		rawSegments[i] = RawSegment{Offset: offset, Addr: addr, Size: size}
	}

	return &File{data: data, memorySize: memorySize, rawSegments: rawSegments}, nil
}

// MemorySize reports the target memory size declared in the header.
func (f *File) MemorySize() uint32 {
	return f.memorySize
}

// SegmentCount reports the number of segments in the file.
func (f *File) SegmentCount() int {
	return len(f.rawSegments)
}

// RawSegments returns the file's segment table entries in file order.
func (f *File) RawSegments() []RawSegment {
	return f.rawSegments
}

// Segment is one segment's destination address and data, sliced out of
// the original file bytes.
type Segment struct {
	Addr uint32
	Data []byte
}

// Segments returns every segment's address and data view.
func (f *File) Segments() []Segment {
	segments := make([]Segment, len(f.rawSegments))
	for i, raw := range f.rawSegments {
		segments[i] = Segment{Addr: raw.Addr, Data: f.data[raw.Offset : raw.Offset+raw.Size]}
	}
	return segments
}

// ToMemory allocates a buffer of MemorySize bytes and copies every
// segment into it at its destination address, failing if any segment
// would run past the end of memory.
func (f *File) ToMemory() ([]byte, error) {
	mem := make([]byte, f.memorySize)
	for _, raw := range f.rawSegments {
		end, ok := addOverflow(raw.Addr, raw.Size)
		if !ok || end > f.memorySize {
			return nil, &Error{Kind: InvalidAddrRange, Addr: raw.Addr, Size: raw.Size}
		}
		copy(mem[raw.Addr:end], f.data[raw.Offset:raw.Offset+raw.Size])
	}
	return mem, nil
}

// Serialize renders an encoder.Program as an object file, dropping
// nothing and coalescing nothing: segments are written in the order
// given, one table entry and one data run per segment.
func Serialize(program *encoder.Program) ([]byte, error) {
	segmentCount := len(program.Segments)
	tableSize, ok := mulOverflow(uint32(segmentCount), segmentHeaderSize)
	if !ok {
		return nil, &Error{Kind: FileTooLarge}
	}
	dataOffset, ok := addOverflow(fileHeaderSize, tableSize)
	if !ok {
		return nil, &Error{Kind: FileTooLarge}
	}

	out := make([]byte, dataOffset)
	out[0], out[1], out[2], out[3] = fileMagic[0], fileMagic[1], fileMagic[2], fileMagic[3]
	binary.LittleEndian.PutUint32(out[4:8], fileVersion)
	binary.LittleEndian.PutUint32(out[8:12], program.MemorySize)
	binary.LittleEndian.PutUint32(out[12:16], uint32(segmentCount))

	offset := dataOffset
	for i, seg := range program.Segments {
		size := uint32(len(seg.Data))
		newOffset, ok := addOverflow(offset, size)
		if !ok {
			return nil, &Error{Kind: FileTooLarge}
		}

		base := fileHeaderSize + i*segmentHeaderSize
		binary.LittleEndian.PutUint32(out[base:base+4], offset)
		binary.LittleEndian.PutUint32(out[base+4:base+8], seg.Addr)
		binary.LittleEndian.PutUint32(out[base+8:base+12], size)

		out = append(out, seg.Data...)
		offset = newOffset
	}

	return out, nil
}

func addOverflow(a, b uint32) (uint32, bool) {
	sum := a + b
	return sum, sum >= a
}

func mulOverflow(a, b uint32) (uint32, bool) {
	if a == 0 {
		return 0, true
	}
	product := a * b
	return product, product/a == b
}
