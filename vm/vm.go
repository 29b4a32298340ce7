// Package vm implements the fetch-decode-execute engine: 16 general
// registers (register 0 hard-wired to zero), a program counter, and a
// flat memory image, plus the SYSFN system-call interface wired to a
// host-supplied collaborator.
package vm

import "github.com/ashenford/rvm32/isa"

// HostIO is the synchronous collaborator a running VM calls into for
// SYSFN 1 (read) and SYSFN 2 (write). It is the only suspension point in
// the VM and may block indefinitely; the VM calls it synchronously, in
// program order.
type HostIO interface {
	Read() uint32
	Write(value uint32)
}

// ResetPC is the program counter value every VM starts execution at.
const ResetPC = 0x1000

// VM is one instance of the register machine: its register file, its
// memory, and the host it calls into for system functions.
type VM struct {
	PC   uint32
	Regs [16]uint32
	Mem  *Memory
	Host HostIO
}

// New returns a VM over mem, PC at ResetPC, every register zeroed.
func New(mem *Memory, host HostIO) *VM {
	return &VM{PC: ResetPC, Mem: mem, Host: host}
}

// Run executes instructions until a SYSFN halt or a fatal trap. On halt
// it returns the exit status taken from the halting SYSFN's register; on
// trap it returns the error and leaves vm.PC as it stood at the trap: the
// rejected PC for an InvalidPc trap, otherwise the address just past the
// trapping instruction.
func (m *VM) Run() (uint32, error) {
	for {
		status, halted, err := m.Step()
		if err != nil {
			return 0, err
		}
		if halted {
			return status, nil
		}
	}
}

// Step fetches, decodes, and executes exactly one instruction. halted
// reports whether this step was a successful SYSFN 0 halt, in which case
// status carries the exit code; any other return leaves status 0.
func (m *VM) Step() (status uint32, halted bool, err error) {
	m.Regs[0] = 0

	if m.PC%4 != 0 {
		return 0, false, &Error{Kind: InvalidPc, PC: m.PC}
	}

	inst, err := m.Mem.ReadU32(m.PC)
	if err != nil {
		return 0, false, &Error{Kind: InvalidPc, PC: m.PC}
	}

	pc := m.PC
	m.PC += 4

	return m.execute(pc, inst)
}

// execute dispatches on inst's low byte. faultPC is the address of the
// instruction being executed (m.PC has already been advanced past it by
// Step before this call), used only to rewind PC onto a halting SYSFN and
// to tag a load/store InvalidAddr trap with the instruction that caused
// it. UnknownSysfn/UnknownInst traps carry the advanced PC.
func (m *VM) execute(faultPC, inst uint32) (uint32, bool, error) {
	regs := &m.Regs

	loadAt := func(rb uint32, off int32) uint32 {
		return regs[rb] + uint32(off)
	}

	switch inst & 0xFF {
	case isa.STU8:
		_, r1, r2, off := isa.DecodeRRC(inst)
		if err := m.Mem.WriteU8(loadAt(r2, off), uint8(regs[r1])); err != nil {
			return 0, false, withPC(err, faultPC)
		}
	case isa.STU16:
		_, r1, r2, off := isa.DecodeRRC(inst)
		if err := m.Mem.WriteU16(loadAt(r2, off), uint16(regs[r1])); err != nil {
			return 0, false, withPC(err, faultPC)
		}
	case isa.ST:
		_, r1, r2, off := isa.DecodeRRC(inst)
		if err := m.Mem.WriteU32(loadAt(r2, off), regs[r1]); err != nil {
			return 0, false, withPC(err, faultPC)
		}

	case isa.LDS8:
		_, rd, rb, off := isa.DecodeRRC(inst)
		v, err := m.Mem.ReadU8(loadAt(rb, off))
		if err != nil {
			return 0, false, withPC(err, faultPC)
		}
		regs[rd] = uint32(int32(int8(v)))
	case isa.LDU8:
		_, rd, rb, off := isa.DecodeRRC(inst)
		v, err := m.Mem.ReadU8(loadAt(rb, off))
		if err != nil {
			return 0, false, withPC(err, faultPC)
		}
		regs[rd] = uint32(v)
	case isa.LDS16:
		_, rd, rb, off := isa.DecodeRRC(inst)
		v, err := m.Mem.ReadU16(loadAt(rb, off))
		if err != nil {
			return 0, false, withPC(err, faultPC)
		}
		regs[rd] = uint32(int32(int16(v)))
	case isa.LDU16:
		_, rd, rb, off := isa.DecodeRRC(inst)
		v, err := m.Mem.ReadU16(loadAt(rb, off))
		if err != nil {
			return 0, false, withPC(err, faultPC)
		}
		regs[rd] = uint32(v)
	case isa.LD:
		_, rd, rb, off := isa.DecodeRRC(inst)
		v, err := m.Mem.ReadU32(loadAt(rb, off))
		if err != nil {
			return 0, false, withPC(err, faultPC)
		}
		regs[rd] = v

	case isa.BEQ:
		m.branch(inst, func(x, y uint32) bool { return x == y })
	case isa.BNE:
		m.branch(inst, func(x, y uint32) bool { return x != y })
	case isa.BLT:
		m.branch(inst, func(x, y uint32) bool { return int32(x) < int32(y) })
	case isa.BGE:
		m.branch(inst, func(x, y uint32) bool { return int32(x) >= int32(y) })
	case isa.BLTU:
		m.branch(inst, func(x, y uint32) bool { return x < y })
	case isa.BGEU:
		m.branch(inst, func(x, y uint32) bool { return x >= y })

	case isa.ADDI:
		_, rd, rs, imm := isa.DecodeRRC(inst)
		regs[rd] = regs[rs] + uint32(imm)
	case isa.RSUBI:
		_, rd, rs, imm := isa.DecodeRRC(inst)
		regs[rd] = uint32(imm) - regs[rs]
	case isa.MULI:
		_, rd, rs, imm := isa.DecodeRRC(inst)
		regs[rd] = regs[rs] * uint32(imm)
	case isa.ANDI:
		_, rd, rs, imm := isa.DecodeRRC(inst)
		regs[rd] = regs[rs] & uint32(imm)
	case isa.ORI:
		_, rd, rs, imm := isa.DecodeRRC(inst)
		regs[rd] = regs[rs] | uint32(imm)
	case isa.XORI:
		_, rd, rs, imm := isa.DecodeRRC(inst)
		regs[rd] = regs[rs] ^ uint32(imm)
	case isa.SHLI:
		_, rd, rs, imm := isa.DecodeRRC(inst)
		regs[rd] = regs[rs] << (uint32(imm) & 0x1F)
	case isa.LSHRI:
		_, rd, rs, imm := isa.DecodeRRC(inst)
		regs[rd] = regs[rs] >> (uint32(imm) & 0x1F)
	case isa.ASHRI:
		_, rd, rs, imm := isa.DecodeRRC(inst)
		regs[rd] = uint32(int32(regs[rs]) >> (uint32(imm) & 0x1F))

	case isa.ADD:
		_, rd, r1, r2 := isa.DecodeRRR(inst)
		regs[rd] = regs[r1] + regs[r2]
	case isa.SUB:
		_, rd, r1, r2 := isa.DecodeRRR(inst)
		regs[rd] = regs[r1] - regs[r2]
	case isa.MUL:
		_, rd, r1, r2 := isa.DecodeRRR(inst)
		regs[rd] = regs[r1] * regs[r2]
	case isa.AND:
		_, rd, r1, r2 := isa.DecodeRRR(inst)
		regs[rd] = regs[r1] & regs[r2]
	case isa.OR:
		_, rd, r1, r2 := isa.DecodeRRR(inst)
		regs[rd] = regs[r1] | regs[r2]
	case isa.XOR:
		_, rd, r1, r2 := isa.DecodeRRR(inst)
		regs[rd] = regs[r1] ^ regs[r2]
	case isa.SHL:
		_, rd, r1, r2 := isa.DecodeRRR(inst)
		regs[rd] = regs[r1] << (regs[r2] & 0x1F)
	case isa.LSHR:
		_, rd, r1, r2 := isa.DecodeRRR(inst)
		regs[rd] = regs[r1] >> (regs[r2] & 0x1F)
	case isa.ASHR:
		_, rd, r1, r2 := isa.DecodeRRR(inst)
		regs[rd] = uint32(int32(regs[r1]) >> (regs[r2] & 0x1F))

	case isa.JAL:
		_, rd, off := isa.DecodeRC(inst)
		regs[rd] = m.PC
		m.PC += uint32(off) << 2
	case isa.JALR:
		_, rd, rs, off := isa.DecodeRRC(inst)
		newPC := (regs[rs] + uint32(off)) &^ 3
		regs[rd] = m.PC
		m.PC = newPC

	case isa.LI:
		_, rd, imm := isa.DecodeRC(inst)
		regs[rd] = uint32(imm)
	case isa.LUI:
		rd := (inst >> 8) & 0xF
		regs[rd] = (inst >> 12) << 12

	case isa.MULW:
		_, rd1, rd2, rs1, rs2 := isa.DecodeRRRR(inst)
		lhs := int64(int32(regs[rs1]))
		rhs := int64(int32(regs[rs2]))
		product := uint64(lhs * rhs)
		regs[rd1] = uint32(product)
		regs[rd2] = uint32(product >> 32)
	case isa.MULWU:
		_, rd1, rd2, rs1, rs2 := isa.DecodeRRRR(inst)
		product := uint64(regs[rs1]) * uint64(regs[rs2])
		regs[rd1] = uint32(product)
		regs[rd2] = uint32(product >> 32)
	case isa.DIV:
		_, rd1, rd2, rs1, rs2 := isa.DecodeRRRR(inst)
		lhs := int32(regs[rs1])
		rhs := int32(regs[rs2])
		var q, r int32
		switch rhs {
		case 0:
			q, r = -1, lhs
		case -1:
			q, r = -lhs, 0
		default:
			q, r = lhs/rhs, lhs%rhs
		}
		regs[rd1] = uint32(q)
		regs[rd2] = uint32(r)
	case isa.DIVU:
		_, rd1, rd2, rs1, rs2 := isa.DecodeRRRR(inst)
		lhs := regs[rs1]
		rhs := regs[rs2]
		var q, r uint32
		if rhs == 0 {
			q, r = 0xFFFFFFFF, lhs
		} else {
			q, r = lhs/rhs, lhs%rhs
		}
		regs[rd1] = q
		regs[rd2] = r

	case isa.SYSFN:
		_, r, nr := isa.DecodeRC(inst)
		switch nr {
		case 0:
			m.PC = faultPC
			return regs[r], true, nil
		case 1:
			regs[r] = m.Host.Read()
		case 2:
			m.Host.Write(regs[r])
		default:
			return 0, false, &Error{Kind: UnknownSysfn, PC: m.PC, Nr: uint32(nr)}
		}

	default:
		return 0, false, &Error{Kind: UnknownInst, PC: m.PC, Inst: inst}
	}

	return 0, false, nil
}

// branch implements every BEQ/BNE/BLT/BGE/BLTU/BGEU variant: it decodes
// the RRC-shaped comparison and, if cond holds on the two source
// registers, advances PC by the scaled signed offset.
func (m *VM) branch(inst uint32, cond func(x, y uint32) bool) {
	_, rs1, rs2, off := isa.DecodeRRC(inst)
	if cond(m.Regs[rs1], m.Regs[rs2]) {
		m.PC += uint32(off) << 2
	}
}

func withPC(err error, pc uint32) error {
	if e, ok := err.(*Error); ok {
		e.PC = pc
	}
	return err
}
