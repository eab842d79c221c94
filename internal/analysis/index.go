package analysis

import (
	"cmp"
	"slices"
)

// AddressIndex maps addresses to the procedures of a Program that have a
// body. It is built after recovery; procedures never point at each other.
type AddressIndex struct {
	procs []*Procedure // ascending by Start
}

// BuildAddressIndex indexes the text and entry procedures of p.
func BuildAddressIndex(p *Program) *AddressIndex {
	idx := &AddressIndex{}
	for i := range p.Procedures {
		proc := &p.Procedures[i]
		if proc.Kind == ProcText || proc.Kind == ProcEntry && len(proc.Insts) > 0 {
			idx.procs = append(idx.procs, proc)
		}
	}
	slices.SortStableFunc(idx.procs, func(a, b *Procedure) int {
		return cmp.Compare(a.Start, b.Start)
	})
	return idx
}

// Lookup returns the procedure whose body contains addr and the offset of
// addr from its start.
func (idx *AddressIndex) Lookup(addr uint64) (*Procedure, uint64, bool) {
	i, found := slices.BinarySearchFunc(idx.procs, addr, func(p *Procedure, a uint64) int {
		return cmp.Compare(p.Start, a)
	})
	if found {
		return idx.procs[i], 0, true
	}
	if i == 0 {
		return nil, 0, false
	}
	p := idx.procs[i-1]
	if off := addr - p.Start; off < p.Length() {
		return p, off, true
	}
	return nil, 0, false
}

// Symbolize formats addr as name or name+0xoff. It matches the signature of
// x86asm.SymLookup, returning the base the name refers to.
func (idx *AddressIndex) Symbolize(addr uint64) (string, uint64) {
	p, off, ok := idx.Lookup(addr)
	if !ok {
		return "", 0
	}
	return p.Name(), addr - off
}

// Len returns the number of indexed procedures.
func (idx *AddressIndex) Len() int {
	return len(idx.procs)
}
