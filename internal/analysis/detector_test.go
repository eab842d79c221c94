package analysis

import (
	"errors"
	"strings"
	"testing"

	"recompiler/internal/elfx"
)

func TestChecks(t *testing.T) {
	foo := elfx.Symbol{Name: "foo", Addr: 0x1000, Index: 1}
	bar := elfx.Symbol{Name: "bar", Addr: 0x1010, Index: 2}
	insts := ClassifyStream(nil, 0)

	valid := func() *Program {
		return &Program{
			Symbols: []elfx.Symbol{foo, bar},
			Procedures: []Procedure{
				{Symbol: foo, Kind: ProcText, Start: 0x1000, Insts: insts},
				{Symbol: bar, Kind: ProcText, Start: 0x1010, Insts: insts},
			},
			Stats: Stats{TextInsts: 3, Discarded: 2, Trimmed: 1},
		}
	}

	tests := []struct {
		name   string
		mutate func(p *Program)
		check  string
	}{
		{name: "valid", mutate: func(p *Program) {}},
		{
			name:   "missing procedure",
			mutate: func(p *Program) { p.Procedures = p.Procedures[:1] },
			check:  "coverage",
		},
		{
			name:   "duplicate procedure",
			mutate: func(p *Program) { p.Procedures[1].Symbol = foo },
			check:  "coverage",
		},
		{
			name: "out of order",
			mutate: func(p *Program) {
				p.Procedures[0], p.Procedures[1] = p.Procedures[1], p.Procedures[0]
			},
			check: "ordering",
		},
		{
			name:   "lost instruction",
			mutate: func(p *Program) { p.Stats.TextInsts++ },
			check:  "conservation",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid()
			tt.mutate(p)
			err := DefaultChecks().Check(p)
			if tt.check == "" {
				if err != nil {
					t.Fatalf("Check failed: %v", err)
				}
				return
			}
			if !errors.Is(err, ErrInvariant) {
				t.Fatalf("err = %v, want ErrInvariant", err)
			}
			if !strings.Contains(err.Error(), tt.check) {
				t.Errorf("err = %v, want it to name %s", err, tt.check)
			}
		})
	}
}
