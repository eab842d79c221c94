package analysis

import (
	"fmt"

	"recompiler/internal/disasm"
	"recompiler/internal/elfx"
)

// Slice is the body recovered for one addressed symbol.
type Slice struct {
	Sym     elfx.Symbol
	Start   uint64        // absolute address of the first instruction
	Insts   disasm.Stream // body after trailing no-ops were removed
	Trimmed disasm.Stream // the removed no-ops
	Aliases []elfx.Symbol // later symbols at Start
}

// Partitioned is the output of Partition.
type Partitioned struct {
	Slices    []Slice
	Stray     []elfx.Symbol // no instruction starts at their address, address order
	Discarded disasm.Stream // instructions not covered by any matched symbol
}

// Partition walks stream and syms in a single merge-style pass and cuts the
// stream into one slice per symbol that has an instruction starting exactly
// at its address. stream offsets are relative to base; syms must be sorted
// ascending by address and may end with the sentinel returned by BuildIndex.
//
// A slice runs until the first instruction at or past the next strictly
// greater symbol address. Symbols at the same address as a matched one are
// reported as its aliases; the first in order wins the body.
func Partition(stream disasm.Stream, syms []AddrSym, base uint64) (Partitioned, error) {
	if err := stream.Validate(); err != nil {
		return Partitioned{}, err
	}
	for k := 1; k < len(syms); k++ {
		if syms[k].Addr < syms[k-1].Addr {
			return Partitioned{}, fmt.Errorf("%w: symbols not sorted at %#x", ErrInvariant, syms[k].Addr)
		}
	}
	if len(syms) == 0 || syms[len(syms)-1].Sym != nil {
		syms = append(syms[:len(syms):len(syms)], AddrSym{Addr: sentinelAddr})
	}

	var out Partitioned
	i, k := 0, 0
	for i < len(stream) {
		addr := base + stream[i].Offset
		cur := syms[k]

		switch {
		case cur.Sym != nil && addr == cur.Addr:
			next := k + 1
			for syms[next].Sym != nil && syms[next].Addr == cur.Addr {
				next++
			}
			end := syms[next].Addr

			start := i
			for i < len(stream) && base+stream[i].Offset < end {
				i++
			}
			body := stream[start:i:i]
			kept := TrimNops(body)

			sl := Slice{
				Sym:   *cur.Sym,
				Start: addr,
				Insts: kept,
			}
			if len(kept) < len(body) {
				sl.Trimmed = body[len(kept):]
			}
			for _, a := range syms[k+1 : next] {
				sl.Aliases = append(sl.Aliases, *a.Sym)
			}
			out.Slices = append(out.Slices, sl)
			k = next

		case cur.Sym != nil && addr > cur.Addr:
			out.Stray = append(out.Stray, *cur.Sym)
			k++

		default:
			out.Discarded = append(out.Discarded, stream[i])
			i++
		}
	}

	// Symbols past the end of the stream never met an instruction.
	for ; k < len(syms); k++ {
		if syms[k].Sym != nil {
			out.Stray = append(out.Stray, *syms[k].Sym)
		}
	}
	return out, nil
}

// TrimNops returns s without its trailing no-op instructions. The result
// shares s's backing array.
func TrimNops(s disasm.Stream) disasm.Stream {
	n := len(s)
	for n > 0 && s[n-1].IsNop() {
		n--
	}
	return s[:n:n]
}
