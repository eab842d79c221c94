package analysis

import (
	"golang.org/x/arch/x86/x86asm"

	"recompiler/internal/disasm"
)

// conditionalJumps lists every x86-64 jump that tests flags or a counter:
// relational, zero/sign/overflow/parity, CX/ECX/RCX-zero and the LOOP family.
var conditionalJumps = map[x86asm.Op]bool{
	x86asm.JA:     true,
	x86asm.JAE:    true,
	x86asm.JB:     true,
	x86asm.JBE:    true,
	x86asm.JE:     true,
	x86asm.JNE:    true,
	x86asm.JG:     true,
	x86asm.JGE:    true,
	x86asm.JL:     true,
	x86asm.JLE:    true,
	x86asm.JO:     true,
	x86asm.JNO:    true,
	x86asm.JP:     true,
	x86asm.JNP:    true,
	x86asm.JS:     true,
	x86asm.JNS:    true,
	x86asm.JCXZ:   true,
	x86asm.JECXZ:  true,
	x86asm.JRCXZ:  true,
	x86asm.LOOP:   true,
	x86asm.LOOPE:  true,
	x86asm.LOOPNE: true,
}

// Classify returns the control-transfer role of inst. It looks at nothing
// but the instruction itself.
func Classify(inst disasm.Inst) Class {
	if inst.Pseudo != "" {
		return Class{}
	}
	switch op := inst.Op; {
	case op == x86asm.CALL || op == x86asm.LCALL:
		return Class{IsCall: true}
	case op == x86asm.JMP || op == x86asm.LJMP:
		return Class{IsBranch: true}
	case conditionalJumps[op]:
		return Class{IsBranch: true, HasCondition: true}
	}
	return Class{}
}

// ClassifyAt classifies inst located at absolute address pc and records its
// symbolic target.
func ClassifyAt(inst disasm.Inst, pc uint64) ClassifiedInst {
	c := ClassifiedInst{
		Inst:  inst,
		Addr:  pc,
		Class: Classify(inst),
	}
	if c.IsCall || c.IsBranch {
		c.Target = targetOf(inst, pc)
	}
	return c
}

// ClassifyStream classifies every instruction of s, which was decoded from a
// buffer loaded at base.
func ClassifyStream(s disasm.Stream, base uint64) []ClassifiedInst {
	out := make([]ClassifiedInst, 0, len(s))
	for _, inst := range s {
		out = append(out, ClassifyAt(inst, base+inst.Offset))
	}
	return out
}

// targetOf extracts the transfer destination from the first operand.
func targetOf(inst disasm.Inst, pc uint64) Target {
	next := pc + uint64(inst.Len)
	switch arg := inst.Dec.Args[0].(type) {
	case nil:
		return Target{}
	case x86asm.Rel:
		return Target{Kind: TargetDirect, Addr: next + uint64(int64(arg))}
	case x86asm.Mem:
		if arg.Base == x86asm.RIP && arg.Index == 0 {
			// call/jmp [rip+disp]: GOT slots and jump tables
			return Target{Kind: TargetMemory, Addr: next + uint64(arg.Disp)}
		}
		if arg.Base == 0 && arg.Index == 0 {
			return Target{Kind: TargetMemory, Addr: uint64(arg.Disp)}
		}
		return Target{Kind: TargetIndirect}
	default:
		return Target{Kind: TargetIndirect}
	}
}
