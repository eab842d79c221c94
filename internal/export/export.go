// Package export serializes recovered procedures for downstream stages.
package export

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"

	"recompiler/internal/analysis"
)

// Version is bumped whenever field tags change meaning.
const Version = 1

// cborEncMode uses canonical options so that the same program always
// encodes to the same bytes.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("export: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Program is the serialized form of analysis.Program.
type Program struct {
	Version    int         `json:"version" cbor:"1,keyasint"`
	Path       string      `json:"path,omitempty" cbor:"2,keyasint,omitempty"`
	TextBase   uint64      `json:"textBase" cbor:"3,keyasint"`
	Procedures []Procedure `json:"procedures" cbor:"4,keyasint"`
	Stats      Stats       `json:"stats" cbor:"5,keyasint"`
}

// Procedure is one recovered procedure.
type Procedure struct {
	Name      string   `json:"name" cbor:"1,keyasint"`
	Demangled string   `json:"demangled,omitempty" cbor:"2,keyasint,omitempty"`
	Kind      string   `json:"kind" cbor:"3,keyasint"`
	Start     uint64   `json:"start" cbor:"4,keyasint"`
	Size      uint64   `json:"size" cbor:"5,keyasint"`
	Insts     []Inst   `json:"insts" cbor:"6,keyasint"`
	Aliases   []string `json:"aliases,omitempty" cbor:"7,keyasint,omitempty"`
	AliasOf   string   `json:"aliasOf,omitempty" cbor:"8,keyasint,omitempty"`
}

// Inst is one classified instruction.
type Inst struct {
	Addr         uint64  `json:"addr" cbor:"1,keyasint"`
	Bytes        []byte  `json:"bytes" cbor:"2,keyasint"`
	Mnemonic     string  `json:"mnemonic" cbor:"3,keyasint"`
	Text         string  `json:"text" cbor:"4,keyasint"`
	IsCall       bool    `json:"isCall,omitempty" cbor:"5,keyasint,omitempty"`
	IsBranch     bool    `json:"isBranch,omitempty" cbor:"6,keyasint,omitempty"`
	HasCondition bool    `json:"hasCondition,omitempty" cbor:"7,keyasint,omitempty"`
	Target       *Target `json:"target,omitempty" cbor:"8,keyasint,omitempty"`
}

// Target is the symbolic destination of a call or branch.
type Target struct {
	Kind string `json:"kind" cbor:"1,keyasint"`
	Addr uint64 `json:"addr,omitempty" cbor:"2,keyasint,omitempty"`
}

// Stats mirrors analysis.Stats.
type Stats struct {
	TextInsts  int `json:"textInsts" cbor:"1,keyasint"`
	Discarded  int `json:"discarded" cbor:"2,keyasint"`
	Trimmed    int `json:"trimmed" cbor:"3,keyasint"`
	EntryInsts int `json:"entryInsts" cbor:"4,keyasint"`
	Stray      int `json:"stray" cbor:"5,keyasint"`
	Aliases    int `json:"aliases" cbor:"6,keyasint"`
	External   int `json:"external" cbor:"7,keyasint"`
}

// FromProgram converts a recovered program to its serialized form.
func FromProgram(p *analysis.Program) *Program {
	out := &Program{
		Version:    Version,
		Path:       p.Path,
		TextBase:   p.TextBase,
		Procedures: make([]Procedure, 0, len(p.Procedures)),
		Stats:      Stats(p.Stats),
	}
	for i := range p.Procedures {
		proc := &p.Procedures[i]
		ep := Procedure{
			Name:    proc.Name(),
			Kind:    proc.Kind.String(),
			Start:   proc.Start,
			Size:    proc.Length(),
			Insts:   make([]Inst, 0, len(proc.Insts)),
			AliasOf: proc.AliasOf,
		}
		if proc.Demangled != proc.Name() {
			ep.Demangled = proc.Demangled
		}
		for _, a := range proc.Aliases {
			ep.Aliases = append(ep.Aliases, a.Name)
		}
		for _, ci := range proc.Insts {
			ei := Inst{
				Addr:         ci.Addr,
				Bytes:        ci.Inst.Raw,
				Mnemonic:     ci.Inst.Mnemonic(),
				Text:         ci.Inst.Format(ci.Addr, nil),
				IsCall:       ci.IsCall,
				IsBranch:     ci.IsBranch,
				HasCondition: ci.HasCondition,
			}
			if ci.Target.Kind != analysis.TargetNone {
				ei.Target = &Target{Kind: ci.Target.Kind.String(), Addr: ci.Target.Addr}
			}
			ep.Insts = append(ep.Insts, ei)
		}
		out.Procedures = append(out.Procedures, ep)
	}
	return out
}

// WriteJSON writes p as indented JSON.
func WriteJSON(w io.Writer, p *analysis.Program) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(FromProgram(p)); err != nil {
		return fmt.Errorf("export: encode json: %w", err)
	}
	return nil
}

// MarshalCBOR serializes p to canonical CBOR bytes.
func MarshalCBOR(p *analysis.Program) ([]byte, error) {
	return cborEncMode.Marshal(FromProgram(p))
}

// Decode deserializes a program from CBOR bytes.
func Decode(data []byte) (*Program, error) {
	var p Program
	if err := cbor.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("export: unmarshal program: %w", err)
	}
	if p.Version != Version {
		return nil, fmt.Errorf("export: unsupported version %d", p.Version)
	}
	return &p, nil
}
