// Package encoder implements the two-pass assembler: a symbol-resolution
// pass that assigns every label and assignment a value while walking the
// AST in emission order, followed by a code-emission pass that re-derives
// the same addresses and writes instruction/data bytes. The one exception
// is the mem directive, which pass one counts as 4 bytes and pass two
// emits nothing for. The two passes are independent except for the
// resolved symbol table they share — the emission pass never needs to
// look ahead.
package encoder

import (
	"encoding/binary"

	"github.com/ashenford/rvm32/ast"
	"github.com/ashenford/rvm32/ident"
	"github.com/ashenford/rvm32/isa"
)

// Program is the encoder's output: a memory size and an ordered list of
// address-tagged byte segments.
type Program struct {
	MemorySize uint32
	Segments   []Segment
}

// Segment is a contiguous run of bytes destined for a fixed address.
type Segment struct {
	Addr uint32
	Data []byte
}

// symtab is a dense vector of resolved symbol values, indexed by
// ident.Symbol, mirroring the reference compiler's Vec<Option<u32>>.
type symtab struct {
	values  []uint32
	defined []bool
}

func newSymtab(size int) *symtab {
	return &symtab{values: make([]uint32, size), defined: make([]bool, size)}
}

func (s *symtab) get(sym ident.Symbol) (uint32, bool) {
	return s.values[sym], s.defined[sym]
}

func (s *symtab) set(sym ident.Symbol, value uint32) {
	s.values[sym] = value
	s.defined[sym] = true
}

// Compile runs both passes over nodes and returns the assembled Program.
// tableLen is the number of distinct identifiers interned while parsing
// (ident.Table.Len()), which fixes the symbol table's size.
func Compile(nodes []ast.Node, tableLen int) (*Program, error) {
	symtab, err := resolveSymbols(nodes, tableLen)
	if err != nil {
		return nil, err
	}
	program, err := compileTree(nodes, symtab)
	if err != nil {
		return nil, err
	}
	program.Segments = removeEmptySegments(program.Segments)
	return program, nil
}

// evalExpr evaluates an RPN expression against a (possibly partially
// resolved) symbol table using wrapping u32 arithmetic throughout.
func evalExpr(expr []ast.ExprOp, symtab *symtab) (uint32, error) {
	stack := make([]uint32, 0, 16)
	pop := func() uint32 {
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		return v
	}

	for _, op := range expr {
		switch op.Kind {
		case ast.OpInt:
			stack = append(stack, op.Int)
		case ast.OpLabel:
			v, ok := symtab.get(op.Label)
			if !ok {
				return 0, &Error{Kind: UndefinedSymbol}
			}
			stack = append(stack, v)
		case ast.OpAdd:
			y, x := pop(), pop()
			stack = append(stack, x+y)
		case ast.OpSub:
			y, x := pop(), pop()
			stack = append(stack, x-y)
		case ast.OpMul:
			y, x := pop(), pop()
			stack = append(stack, x*y)
		case ast.OpAnd:
			y, x := pop(), pop()
			stack = append(stack, x&y)
		case ast.OpOr:
			y, x := pop(), pop()
			stack = append(stack, x|y)
		case ast.OpXor:
			y, x := pop(), pop()
			stack = append(stack, x^y)
		case ast.OpShl:
			y, x := pop(), pop()
			stack = append(stack, x<<(y&0x1F))
		case ast.OpLshr:
			y, x := pop(), pop()
			stack = append(stack, x>>(y&0x1F))
		case ast.OpAshr:
			y, x := pop(), pop()
			stack = append(stack, uint32(int32(x)>>(y&0x1F)))
		}
	}
	return stack[len(stack)-1], nil
}

func extractExpr(arg ast.Arg) ([]ast.ExprOp, error) {
	if arg.Kind != ast.ArgExpr {
		return nil, &Error{Kind: InvalidArgument}
	}
	return arg.Expr, nil
}

func extractAndEvalExpr(arg ast.Arg, symtab *symtab) (uint32, error) {
	expr, err := extractExpr(arg)
	if err != nil {
		return 0, err
	}
	return evalExpr(expr, symtab)
}

func extractReg(arg ast.Arg) (uint32, error) {
	if arg.Kind != ast.ArgReg {
		return 0, &Error{Kind: InvalidArgument}
	}
	return arg.Reg, nil
}

// resolveSymbols is pass one: it walks the AST purely to assign every
// label and assignment a value, tracking the emission address a later
// instruction or directive would land at, without emitting any bytes.
// A mem directive falls into the default case and advances the address
// by 4, so a label after it in the same segment resolves 4 bytes past
// where pass two places the following bytes.
func resolveSymbols(nodes []ast.Node, tableLen int) (*symtab, error) {
	symtab := newSymtab(tableLen)
	var addr uint32

	for _, node := range nodes {
		line := node.Line
		switch {
		case node.Kind == ast.KindLabel:
			if _, ok := symtab.get(node.Sym); ok {
				return nil, &Error{Kind: RedefinedSymbol, Line: line}
			}
			symtab.set(node.Sym, addr)

		case node.Kind == ast.KindAssign:
			if len(node.Args) != 1 {
				return nil, &Error{Kind: InvalidArgCount, Line: line}
			}
			value, err := extractAndEvalExpr(node.Args[0], symtab)
			if err != nil {
				return nil, withLine(err, line)
			}
			if _, ok := symtab.get(node.Sym); ok {
				return nil, &Error{Kind: RedefinedSymbol, Line: line}
			}
			symtab.set(node.Sym, value)

		case node.Kind == ast.KindInst && node.Sym == isa.SymSEG:
			if len(node.Args) != 1 {
				return nil, &Error{Kind: InvalidArgCount, Line: line}
			}
			value, err := extractAndEvalExpr(node.Args[0], symtab)
			if err != nil {
				return nil, withLine(err, line)
			}
			addr = value

		case node.Kind == ast.KindInst && isDataDirective(node.Sym):
			if len(node.Args) == 0 {
				return nil, &Error{Kind: InvalidArgCount, Line: line}
			}
			size := directiveSize(node.Sym)
			for _, arg := range node.Args {
				var offset uint32
				switch arg.Kind {
				case ast.ArgExpr:
					offset = size
				case ast.ArgStr:
					offset = uint32(len(arg.Str))
				default:
					return nil, &Error{Kind: InvalidArgument, Line: line}
				}
				newAddr := addr + offset
				if newAddr < addr {
					return nil, &Error{Kind: AddrOverflow, Line: line}
				}
				addr = newAddr
			}

		default:
			newAddr := addr + 4
			if newAddr < addr {
				return nil, &Error{Kind: AddrOverflow, Line: line}
			}
			addr = newAddr
		}
	}

	return symtab, nil
}

func isDataDirective(sym ident.Symbol) bool {
	return sym == isa.SymD8 || sym == isa.SymD16 || sym == isa.SymD32
}

func directiveSize(sym ident.Symbol) uint32 {
	switch sym {
	case isa.SymD8:
		return 1
	case isa.SymD16:
		return 2
	default:
		return 4
	}
}

func withLine(err error, line int) error {
	if e, ok := err.(*Error); ok && e.Line == 0 {
		e.Line = line
	}
	return err
}

// compileTree is pass two: it re-derives the addresses (apart from the
// mem case described on resolveSymbols) while actually emitting
// instruction and data bytes into segments.
func compileTree(nodes []ast.Node, symtab *symtab) (*Program, error) {
	program := &Program{}
	segment := Segment{}

	for _, node := range nodes {
		if err := compileNode(node, symtab, program, &segment); err != nil {
			if e, ok := err.(*Error); ok {
				e.Line = node.Line
			}
			return nil, err
		}
	}
	program.Segments = append(program.Segments, segment)
	return program, nil
}

func compileNode(node ast.Node, symtab *symtab, program *Program, segment *Segment) error {
	if node.Kind != ast.KindInst {
		return nil
	}
	inst := node.Sym

	evalBranchOffset := func(target uint32) (uint32, error) {
		addr := segment.Addr + uint32(len(segment.Data))
		offset := target - addr - 4
		if offset%4 != 0 {
			return 0, &Error{Kind: MisalignedOffset}
		}
		return uint32(int32(offset) >> 2), nil
	}

	switch {
	case inst == isa.SymMEM:
		if err := checkArgCount(len(node.Args), 1); err != nil {
			return err
		}
		size, err := extractAndEvalExpr(node.Args[0], symtab)
		if err != nil {
			return err
		}
		if size > program.MemorySize {
			program.MemorySize = size
		}

	case inst == isa.SymSEG:
		if err := checkArgCount(len(node.Args), 1); err != nil {
			return err
		}
		addr, err := extractAndEvalExpr(node.Args[0], symtab)
		if err != nil {
			return err
		}
		program.Segments = append(program.Segments, *segment)
		*segment = Segment{Addr: addr}

	case inst == isa.SymD8:
		for _, arg := range node.Args {
			switch arg.Kind {
			case ast.ArgExpr:
				value, err := evalExpr(arg.Expr, symtab)
				if err != nil {
					return err
				}
				if int32(value) < -128 || int32(value) > 127 {
					return &Error{Kind: ConstantTooLarge}
				}
				segment.Data = append(segment.Data, byte(value))
			case ast.ArgStr:
				segment.Data = append(segment.Data, arg.Str...)
			default:
				return &Error{Kind: InvalidArgument}
			}
		}

	case inst == isa.SymD16:
		for _, arg := range node.Args {
			value, err := extractAndEvalExpr(arg, symtab)
			if err != nil {
				return err
			}
			if int32(value) < -32768 || int32(value) > 32767 {
				return &Error{Kind: ConstantTooLarge}
			}
			var buf [2]byte
			binary.LittleEndian.PutUint16(buf[:], uint16(value))
			segment.Data = append(segment.Data, buf[:]...)
		}

	case inst == isa.SymD32:
		for _, arg := range node.Args {
			value, err := extractAndEvalExpr(arg, symtab)
			if err != nil {
				return err
			}
			var buf [4]byte
			binary.LittleEndian.PutUint32(buf[:], value)
			segment.Data = append(segment.Data, buf[:]...)
		}

	case inst == isa.SymLI || inst == isa.SymLUI || inst == isa.SymSYSFN:
		if err := checkArgCount(len(node.Args), 2); err != nil {
			return err
		}
		op := isa.SymToOpcode(inst)
		r1, err := extractReg(node.Args[0])
		if err != nil {
			return err
		}
		imm, err := extractAndEvalExpr(node.Args[1], symtab)
		if err != nil {
			return err
		}
		if inst == isa.SymLUI {
			if imm>>20 != 0 {
				return &Error{Kind: ConstantTooLarge}
			}
		} else if !isa.CheckImmFits(int32(imm), 20) {
			return &Error{Kind: ConstantTooLarge}
		}
		appendWord(segment, isa.EncodeRC(op, r1, imm))

	case isRRCInst(inst):
		if err := checkArgCount(len(node.Args), 3); err != nil {
			return err
		}
		op := isa.SymToOpcode(inst)
		r1, err := extractReg(node.Args[0])
		if err != nil {
			return err
		}
		r2, err := extractReg(node.Args[1])
		if err != nil {
			return err
		}
		imm, err := extractAndEvalExpr(node.Args[2], symtab)
		if err != nil {
			return err
		}
		if !isa.CheckImmFits(int32(imm), 16) {
			return &Error{Kind: ConstantTooLarge}
		}
		appendWord(segment, isa.EncodeRRC(op, r1, r2, imm))

	case isRRRInst(inst):
		if err := checkArgCount(len(node.Args), 3); err != nil {
			return err
		}
		op := isa.SymToOpcode(inst)
		r1, err := extractReg(node.Args[0])
		if err != nil {
			return err
		}
		r2, err := extractReg(node.Args[1])
		if err != nil {
			return err
		}
		r3, err := extractReg(node.Args[2])
		if err != nil {
			return err
		}
		appendWord(segment, isa.EncodeRRR(op, r1, r2, r3))

	case isRRRRInst(inst):
		if err := checkArgCount(len(node.Args), 4); err != nil {
			return err
		}
		op := isa.SymToOpcode(inst)
		r1, err := extractReg(node.Args[0])
		if err != nil {
			return err
		}
		r2, err := extractReg(node.Args[1])
		if err != nil {
			return err
		}
		r3, err := extractReg(node.Args[2])
		if err != nil {
			return err
		}
		r4, err := extractReg(node.Args[3])
		if err != nil {
			return err
		}
		appendWord(segment, isa.EncodeRRRR(op, r1, r2, r3, r4))

	case isBranchInst(inst):
		if err := checkArgCount(len(node.Args), 3); err != nil {
			return err
		}
		op := isa.SymToOpcode(inst)
		r1, err := extractReg(node.Args[0])
		if err != nil {
			return err
		}
		r2, err := extractReg(node.Args[1])
		if err != nil {
			return err
		}
		if isSwappedBranch(inst) {
			r1, r2 = r2, r1
		}
		target, err := extractAndEvalExpr(node.Args[2], symtab)
		if err != nil {
			return err
		}
		imm, err := evalBranchOffset(target)
		if err != nil {
			return err
		}
		if !isa.CheckImmFits(int32(imm), 16) {
			return &Error{Kind: TargetTooFar}
		}
		appendWord(segment, isa.EncodeRRC(op, r1, r2, imm))

	case inst == isa.SymJAL || inst == isa.SymJMP || inst == isa.SymCALL:
		var r1 uint32
		var targetExpr []ast.ExprOp
		var err error
		switch inst {
		case isa.SymJAL:
			if err = checkArgCount(len(node.Args), 2); err != nil {
				return err
			}
			if r1, err = extractReg(node.Args[0]); err != nil {
				return err
			}
			if targetExpr, err = extractExpr(node.Args[1]); err != nil {
				return err
			}
		case isa.SymJMP:
			if err = checkArgCount(len(node.Args), 1); err != nil {
				return err
			}
			r1 = 0
			if targetExpr, err = extractExpr(node.Args[0]); err != nil {
				return err
			}
		case isa.SymCALL:
			if err = checkArgCount(len(node.Args), 1); err != nil {
				return err
			}
			r1 = 1
			if targetExpr, err = extractExpr(node.Args[0]); err != nil {
				return err
			}
		}
		target, err := evalExpr(targetExpr, symtab)
		if err != nil {
			return err
		}
		imm, err := evalBranchOffset(target)
		if err != nil {
			return err
		}
		if !isa.CheckImmFits(int32(imm), 20) {
			return &Error{Kind: TargetTooFar}
		}
		appendWord(segment, isa.EncodeRC(isa.JAL, r1, imm))

	case inst == isa.SymRET:
		if err := checkArgCount(len(node.Args), 0); err != nil {
			return err
		}
		appendWord(segment, isa.EncodeRRC(isa.JALR, 0, 1, 0))

	case inst == isa.SymMOV:
		if err := checkArgCount(len(node.Args), 2); err != nil {
			return err
		}
		r1, err := extractReg(node.Args[0])
		if err != nil {
			return err
		}
		r2, err := extractReg(node.Args[1])
		if err != nil {
			return err
		}
		appendWord(segment, isa.EncodeRRR(isa.ADDI, r1, r2, 0))

	default:
		return &Error{Kind: UnknownInst}
	}

	return nil
}

// isRRCInst reports whether sym is one of the RRC-shaped instructions not
// already handled as LI/LUI/SYSFN or a branch.
func isRRCInst(sym ident.Symbol) bool {
	switch sym {
	case isa.SymSTS8, isa.SymSTU8, isa.SymSTS16, isa.SymSTU16, isa.SymST,
		isa.SymLDS8, isa.SymLDU8, isa.SymLDS16, isa.SymLDU16, isa.SymLD,
		isa.SymJALR,
		isa.SymADDI, isa.SymRSUBI, isa.SymMULI,
		isa.SymANDI, isa.SymORI, isa.SymXORI, isa.SymSHLI, isa.SymLSHRI, isa.SymASHRI:
		return true
	default:
		return false
	}
}

func isRRRInst(sym ident.Symbol) bool {
	switch sym {
	case isa.SymADD, isa.SymSUB, isa.SymMUL,
		isa.SymAND, isa.SymOR, isa.SymXOR, isa.SymSHL, isa.SymLSHR, isa.SymASHR:
		return true
	default:
		return false
	}
}

func isRRRRInst(sym ident.Symbol) bool {
	switch sym {
	case isa.SymMULW, isa.SymMULWU, isa.SymDIV, isa.SymDIVU:
		return true
	default:
		return false
	}
}

func isBranchInst(sym ident.Symbol) bool {
	switch sym {
	case isa.SymBEQ, isa.SymBNE, isa.SymBLT, isa.SymBGE, isa.SymBLTU, isa.SymBGEU,
		isa.SymBGT, isa.SymBLE, isa.SymBGTU, isa.SymBLEU:
		return true
	default:
		return false
	}
}

func isSwappedBranch(sym ident.Symbol) bool {
	switch sym {
	case isa.SymBGT, isa.SymBLE, isa.SymBGTU, isa.SymBLEU:
		return true
	default:
		return false
	}
}

func appendWord(segment *Segment, word uint32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], word)
	segment.Data = append(segment.Data, buf[:]...)
}

func checkArgCount(got, expected int) error {
	if got != expected {
		return &Error{Kind: InvalidArgCount}
	}
	return nil
}

func removeEmptySegments(segments []Segment) []Segment {
	out := segments[:0]
	for _, seg := range segments {
		if len(seg.Data) != 0 {
			out = append(out, seg)
		}
	}
	return out
}
