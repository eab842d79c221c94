package analysis

import (
	"recompiler/internal/disasm"
	"recompiler/internal/elfx"
)

// Class is the control-transfer role of an instruction. IsCall and IsBranch
// are mutually exclusive and HasCondition implies IsBranch.
type Class struct {
	IsCall       bool
	IsBranch     bool
	HasCondition bool
}

// TargetKind says how much is statically known about a transfer target.
type TargetKind int

const (
	TargetNone     TargetKind = iota // not a transfer, or no operand
	TargetDirect                     // pc-relative immediate, Addr is the destination
	TargetMemory                     // destination is loaded from the slot at Addr
	TargetIndirect                   // register or computed address
)

func (k TargetKind) String() string {
	switch k {
	case TargetDirect:
		return "direct"
	case TargetMemory:
		return "memory"
	case TargetIndirect:
		return "indirect"
	default:
		return "none"
	}
}

// Target is the symbolic destination of a call or branch. It is an address,
// never a procedure or block: resolution happens later through an
// AddressIndex.
type Target struct {
	Kind TargetKind
	Addr uint64
}

// ClassifiedInst is a decoded instruction placed at its absolute address.
type ClassifiedInst struct {
	Inst disasm.Inst
	Addr uint64
	Class
	Target Target
}

// ProcKind records where a procedure's body came from.
type ProcKind int

const (
	ProcText     ProcKind = iota // sliced from the code section
	ProcEntry                    // the initializer section
	ProcAlias                    // shares its address with an earlier symbol
	ProcStray                    // no instruction starts at its address
	ProcExternal                 // zero address, defined outside the image
)

func (k ProcKind) String() string {
	switch k {
	case ProcText:
		return "text"
	case ProcEntry:
		return "entry"
	case ProcAlias:
		return "alias"
	case ProcStray:
		return "stray"
	case ProcExternal:
		return "external"
	default:
		return "unknown"
	}
}

// BasicBlock is reserved for the control-flow graph builder. Procedures
// produced here never carry blocks.
type BasicBlock struct {
	Start, End  uint64
	First, Last int // indexes into Procedure.Insts
}

// Procedure is the recovered body of one function symbol.
type Procedure struct {
	Symbol    elfx.Symbol
	Demangled string
	Kind      ProcKind
	Start     uint64
	Insts     []ClassifiedInst
	Aliases   []elfx.Symbol // later symbols at the same address (text procedures only)
	AliasOf   string        // winning symbol name (alias procedures only)
	Blocks    []BasicBlock
}

// Name returns the symbol name.
func (p *Procedure) Name() string {
	return p.Symbol.Name
}

// Length returns the number of bytes spanned by the body.
func (p *Procedure) Length() uint64 {
	if len(p.Insts) == 0 {
		return 0
	}
	last := p.Insts[len(p.Insts)-1]
	return last.Addr + uint64(last.Inst.Len) - p.Start
}

// Stats summarises one recovery run.
type Stats struct {
	TextInsts  int // instructions decoded from the code section
	Discarded  int // instructions before the first symbol or in gaps after stray symbols
	Trimmed    int // trailing no-ops removed from text procedures
	EntryInsts int
	Stray      int
	Aliases    int
	External   int
}

// Program is the result of recovering procedures from one image.
type Program struct {
	Path       string
	TextBase   uint64
	Symbols    []elfx.Symbol // function symbols in table order
	Procedures []Procedure
	Stats      Stats
}
