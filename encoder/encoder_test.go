package encoder

import (
	"testing"

	"github.com/ashenford/rvm32/ident"
	"github.com/ashenford/rvm32/isa"
	"github.com/ashenford/rvm32/lexer"
	"github.com/ashenford/rvm32/parser"
)

func compileSource(t *testing.T, src string) *Program {
	t.Helper()
	table := ident.NewTable()
	isa.PopulateTable(table)

	nodes, err := parser.Parse(lexer.New(src), table)
	if err != nil {
		t.Fatalf("parse(%q) error: %v", src, err)
	}
	program, err := Compile(nodes, table.Len())
	if err != nil {
		t.Fatalf("compile(%q) error: %v", src, err)
	}
	return program
}

func TestCompileMemAndSegDirectives(t *testing.T) {
	program := compileSource(t, "mem 0x100\nseg 0x1000\nli %x1, 5\n")

	if program.MemorySize != 0x100 {
		t.Errorf("MemorySize = 0x%X, want 0x100", program.MemorySize)
	}
	if len(program.Segments) != 1 {
		t.Fatalf("got %d segments, want 1: %+v", len(program.Segments), program.Segments)
	}
	if program.Segments[0].Addr != 0x1000 {
		t.Errorf("segment addr = 0x%X, want 0x1000", program.Segments[0].Addr)
	}
	if len(program.Segments[0].Data) != 4 {
		t.Fatalf("segment data length = %d, want 4", len(program.Segments[0].Data))
	}

	op, r1, imm := isa.DecodeRC(leWord(program.Segments[0].Data))
	if op != isa.LI || r1 != 1 || imm != 5 {
		t.Errorf("decoded li = op=%d r1=%d imm=%d, want LI,1,5", op, r1, imm)
	}
}

func TestCompileLabelAndBackwardJump(t *testing.T) {
	program := compileSource(t, "seg 0x1000\nloop: addi %x1, %x1, 1\njmp loop\n")

	if len(program.Segments) != 1 {
		t.Fatalf("got %d segments, want 1: %+v", len(program.Segments), program.Segments)
	}
	data := program.Segments[0].Data
	if len(data) != 8 {
		t.Fatalf("segment data length = %d, want 8", len(data))
	}

	op, r1, r2, imm := isa.DecodeRRC(leWord(data[0:4]))
	if op != isa.ADDI || r1 != 1 || r2 != 1 || imm != 1 {
		t.Errorf("decoded addi = op=%d r1=%d r2=%d imm=%d, want ADDI,1,1,1", op, r1, r2, imm)
	}

	op, r1, imm = isa.DecodeRC(leWord(data[4:8]))
	if op != isa.JAL || r1 != 0 || imm != -2 {
		t.Errorf("decoded jmp = op=%d r1=%d imm=%d, want JAL,0,-2", op, r1, imm)
	}
}

func TestCompileD8StringDirective(t *testing.T) {
	program := compileSource(t, "seg 0x2000\nd8 \"hi\", 0\n")

	data := program.Segments[0].Data
	want := []byte{'h', 'i', 0}
	if len(data) != len(want) {
		t.Fatalf("got %d bytes, want %d: %v", len(data), len(want), data)
	}
	for i := range want {
		if data[i] != want[i] {
			t.Errorf("byte %d = 0x%X, want 0x%X", i, data[i], want[i])
		}
	}
}

func TestCompileOversizedImmediateIsConstantTooLarge(t *testing.T) {
	table := ident.NewTable()
	isa.PopulateTable(table)
	nodes, err := parser.Parse(lexer.New("li %x1, 0x80000\n"), table)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	_, err = Compile(nodes, table.Len())
	eerr, ok := err.(*Error)
	if !ok || eerr.Kind != ConstantTooLarge {
		t.Fatalf("got %v, want *Error{Kind: ConstantTooLarge}", err)
	}
}

func TestCompileUndefinedSymbolIsError(t *testing.T) {
	table := ident.NewTable()
	isa.PopulateTable(table)
	nodes, err := parser.Parse(lexer.New("jmp nowhere\n"), table)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	_, err = Compile(nodes, table.Len())
	eerr, ok := err.(*Error)
	if !ok || eerr.Kind != UndefinedSymbol {
		t.Fatalf("got %v, want *Error{Kind: UndefinedSymbol}", err)
	}
}

func leWord(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
