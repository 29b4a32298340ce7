// Package loader bridges the assembler's output and the binary object
// format into a runnable VM, the way the reference vm binary turns a file
// on disk into a vm.State plus a flat memory buffer.
package loader

import (
	"fmt"
	"os"

	"github.com/ashenford/rvm32/binfmt"
	"github.com/ashenford/rvm32/encoder"
	"github.com/ashenford/rvm32/vm"
)

// FromFile reads path, parses it as an object file, and returns a VM ready
// to run from ResetPC.
func FromFile(path string, host vm.HostIO) (*vm.VM, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", path, err)
	}
	return FromBytes(data, host)
}

// FromBytes parses data as an object file and returns a VM over its
// materialized memory image.
func FromBytes(data []byte, host vm.HostIO) (*vm.VM, error) {
	file, err := binfmt.FromBytes(data)
	if err != nil {
		return nil, err
	}

	mem, err := file.ToMemory()
	if err != nil {
		return nil, err
	}

	return vm.New(vm.NewMemoryFromBytes(mem), host), nil
}

// LoadProgram loads an already-compiled encoder.Program directly into a
// fresh VM, skipping the object-file round trip entirely. The asm
// subcommand uses binfmt.Serialize to go to disk; callers that assemble
// and run in the same process (e.g. a test harness) use this instead.
func LoadProgram(program *encoder.Program, host vm.HostIO) (*vm.VM, error) {
	mem := vm.NewMemory(program.MemorySize)
	for _, seg := range program.Segments {
		if err := mem.LoadBytes(seg.Addr, seg.Data); err != nil {
			return nil, err
		}
	}
	return vm.New(mem, host), nil
}
