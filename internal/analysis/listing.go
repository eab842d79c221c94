package analysis

import (
	"fmt"
	"strings"
)

// AnnotatedInst is one line of a procedure listing.
type AnnotatedInst struct {
	Addr        uint64
	Mnemonic    string
	Operands    string
	Annotations []string // Comments to display
}

// String formats the instruction with fixed-width columns. It returns plain
// text; colorization happens after formatting.
func (a AnnotatedInst) String() string {
	// Label line
	if strings.HasSuffix(a.Mnemonic, ":") {
		return fmt.Sprintf("%x  %s", a.Addr, a.Mnemonic)
	}

	addr := fmt.Sprintf("%x", a.Addr) // No 0x prefix, the colorizer adds it
	base := fmt.Sprintf("%-10s %-6s %-30s", addr, a.Mnemonic, a.Operands)
	if len(a.Annotations) > 0 {
		return fmt.Sprintf("%s ; %s", base, strings.Join(a.Annotations, ", "))
	}
	return strings.TrimRight(base, " ")
}

// Annotate builds the listing of p. idx resolves call and branch targets to
// procedure names and may be nil.
func Annotate(p *Procedure, idx *AddressIndex) []AnnotatedInst {
	out := make([]AnnotatedInst, 0, len(p.Insts)+1)
	out = append(out, AnnotatedInst{Addr: p.Start, Mnemonic: p.Name() + ":"})

	// Local branch targets become labels.
	labels := make(map[uint64]bool)
	for _, ci := range p.Insts {
		if ci.IsBranch && ci.Target.Kind == TargetDirect && p.contains(ci.Target.Addr) && ci.Target.Addr != p.Start {
			labels[ci.Target.Addr] = true
		}
	}

	for _, ci := range p.Insts {
		if labels[ci.Addr] {
			out = append(out, AnnotatedInst{Addr: ci.Addr, Mnemonic: fmt.Sprintf("loc_%x:", ci.Addr)})
		}
		mn, ops := ci.Inst.Split(ci.Addr, nil)
		line := AnnotatedInst{Addr: ci.Addr, Mnemonic: mn, Operands: ops}
		if note := targetNote(p, ci, idx); note != "" {
			line.Annotations = append(line.Annotations, note)
		}
		out = append(out, line)
	}
	return out
}

func (p *Procedure) contains(addr uint64) bool {
	return addr >= p.Start && addr-p.Start < p.Length()
}

func targetNote(p *Procedure, ci ClassifiedInst, idx *AddressIndex) string {
	kind := "jmp"
	switch {
	case ci.IsCall:
		kind = "call"
	case ci.HasCondition:
		kind = "jcc"
	case !ci.IsBranch:
		return ""
	}

	switch ci.Target.Kind {
	case TargetDirect:
		if ci.IsBranch && p.contains(ci.Target.Addr) {
			if ci.Target.Addr == p.Start {
				return fmt.Sprintf("%s → %s", kind, p.Name())
			}
			return fmt.Sprintf("%s → loc_%x", kind, ci.Target.Addr)
		}
		return fmt.Sprintf("%s → %s", kind, symbolize(idx, ci.Target.Addr))
	case TargetMemory:
		return fmt.Sprintf("%s → [%#x]", kind, ci.Target.Addr)
	case TargetIndirect:
		return "indirect"
	}
	return ""
}

func symbolize(idx *AddressIndex, addr uint64) string {
	if idx != nil {
		if proc, off, ok := idx.Lookup(addr); ok {
			if off == 0 {
				return proc.Name()
			}
			return fmt.Sprintf("%s+%#x", proc.Name(), off)
		}
	}
	return fmt.Sprintf("sub_%x", addr)
}

// FormatProcedure renders the listing of p as plain text, one instruction
// per line.
func FormatProcedure(p *Procedure, idx *AddressIndex) string {
	var b strings.Builder
	for _, line := range Annotate(p, idx) {
		b.WriteString(line.String())
		b.WriteByte('\n')
	}
	return b.String()
}
