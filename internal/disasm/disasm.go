// Package disasm decodes x86-64 machine code into a linear instruction stream.
package disasm

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/arch/x86/x86asm"
)

// Pseudo mnemonics for byte runs x86asm does not decode.
const (
	PseudoEndbr64 = "endbr64"
	PseudoEndbr32 = "endbr32"
	PseudoBad     = "(bad)"
)

// ErrUnexpectedOrdering is returned when a stream is not sorted ascending by
// offset or contains overlapping instructions.
var ErrUnexpectedOrdering = errors.New("unexpected instruction ordering")

// Inst is a single decoded instruction.
type Inst struct {
	Offset uint64      // byte offset from the start of the decoded buffer
	Len    int         // encoded length in bytes
	Op     x86asm.Op   // zero for pseudo instructions
	Raw    []byte      // encoding, aliases the decoded buffer
	Pseudo string      // set for endbr and undecodable bytes
	Dec    x86asm.Inst // full decoder output, including operands
}

// Stream is a linear sequence of instructions ordered by offset.
type Stream []Inst

// End returns the offset one past the last byte of the instruction.
func (i Inst) End() uint64 {
	return i.Offset + uint64(i.Len)
}

// Mnemonic returns the lowercase canonical mnemonic.
func (i Inst) Mnemonic() string {
	if i.Pseudo != "" {
		return i.Pseudo
	}
	if i.Op == 0 {
		return PseudoBad
	}
	return strings.ToLower(i.Op.String())
}

// IsNop reports whether the instruction is an architectural no-op used for
// alignment padding. Pseudo instructions never are.
func (i Inst) IsNop() bool {
	return i.Pseudo == "" && i.Op == x86asm.NOP
}

// Format renders the instruction in Intel syntax as if it were located at pc.
func (i Inst) Format(pc uint64, lookup x86asm.SymLookup) string {
	if i.Pseudo != "" || i.Op == 0 || i.Dec.Op == 0 {
		return i.Mnemonic()
	}
	return x86asm.IntelSyntax(i.Dec, pc, lookup)
}

var intelPrefixes = map[string]bool{
	"rep": true, "repe": true, "repz": true, "repne": true, "repnz": true,
	"lock": true, "bnd": true, "notrack": true, "data16": true, "addr32": true,
	"xacquire": true, "xrelease": true,
}

// Split renders the instruction at pc and separates the printed mnemonic
// (with any prefixes) from the operand text.
func (i Inst) Split(pc uint64, lookup x86asm.SymLookup) (mnemonic, operands string) {
	fields := strings.Fields(i.Format(pc, lookup))
	n := 0
	for n < len(fields)-1 && intelPrefixes[fields[n]] {
		n++
	}
	if len(fields) == 0 {
		return i.Mnemonic(), ""
	}
	return strings.Join(fields[:n+1], " "), strings.Join(fields[n+1:], " ")
}

// Validate checks that offsets strictly increase and instructions do not
// overlap.
func (s Stream) Validate() error {
	for k := 1; k < len(s); k++ {
		prev, cur := s[k-1], s[k]
		if cur.Offset <= prev.Offset {
			return fmt.Errorf("%w: instruction %d at %#x does not follow %#x", ErrUnexpectedOrdering, k, cur.Offset, prev.Offset)
		}
		if cur.Offset < prev.End() {
			return fmt.Errorf("%w: instruction %d at %#x overlaps %#x+%d", ErrUnexpectedOrdering, k, cur.Offset, prev.Offset, prev.Len)
		}
	}
	return nil
}

// Decoder produces an instruction stream from a contiguous code buffer.
type Decoder interface {
	Decode(code []byte) Stream
}

// AMD64 decodes 64-bit x86 code with a linear sweep.
type AMD64 struct{}

// Decode implements Decoder. Every byte of code ends up in exactly one
// instruction: bytes x86asm rejects become one-byte "(bad)" entries.
func (AMD64) Decode(code []byte) Stream {
	out := make(Stream, 0, len(code)/4)
	offset := 0
	for offset < len(code) {
		// x86asm does not know the CET markers, so emit them as pseudo
		// instructions instead of letting them decode as garbage.
		if offset+4 <= len(code) &&
			code[offset] == 0xf3 && code[offset+1] == 0x0f &&
			code[offset+2] == 0x1e && (code[offset+3] == 0xfa || code[offset+3] == 0xfb) {
			name := PseudoEndbr64
			if code[offset+3] == 0xfb {
				name = PseudoEndbr32
			}
			out = append(out, Inst{
				Offset: uint64(offset),
				Len:    4,
				Raw:    code[offset : offset+4],
				Pseudo: name,
			})
			offset += 4
			continue
		}

		inst, err := x86asm.Decode(code[offset:], 64)
		if err != nil || inst.Len == 0 {
			out = append(out, Inst{
				Offset: uint64(offset),
				Len:    1,
				Raw:    code[offset : offset+1],
				Pseudo: PseudoBad,
			})
			offset++
			continue
		}

		out = append(out, Inst{
			Offset: uint64(offset),
			Len:    inst.Len,
			Op:     inst.Op,
			Raw:    code[offset : offset+inst.Len],
			Dec:    inst,
		})
		offset += inst.Len
	}
	return out
}

// Decode decodes code as x86-64.
func Decode(code []byte) Stream {
	return AMD64{}.Decode(code)
}
