package analysis

import (
	"bytes"
	"debug/elf"
	"errors"
	"fmt"
	"testing"

	"recompiler/internal/elfx"
	"recompiler/internal/elfx/elfxtest"
)

// endbr64; sub rsp, 8; ret
var initBody = []byte{0xf3, 0x0f, 0x1e, 0xfa, 0x48, 0x83, 0xec, 0x08, 0xc3}

func loadImage(t *testing.T, spec elfxtest.Spec) *elfx.Image {
	t.Helper()
	im, err := elfx.Load(bytes.NewReader(elfxtest.Build(spec)), elfx.Options{})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	return im
}

func procNames(p *Program) []string {
	out := make([]string, 0, len(p.Procedures))
	for _, proc := range p.Procedures {
		out = append(out, fmt.Sprintf("%s/%s", proc.Name(), proc.Kind))
	}
	return out
}

func TestRecoverFooBar(t *testing.T) {
	im := loadImage(t, elfxtest.Spec{
		TextAddr: 0x1000,
		Text:     sevenInsts,
		InitAddr: 0x800,
		Init:     initBody,
		Syms: []elfxtest.Sym{
			{Name: "_init", Value: 0},
			{Name: "foo", Value: 0x1002},
			{Name: "bar", Value: 0x1005},
		},
	})

	prog, err := Recover(im, Options{})
	if err != nil {
		t.Fatalf("Recover failed: %v", err)
	}

	want := []string{"foo/text", "bar/text", "_init/entry"}
	if got := procNames(prog); fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("procedures = %v, want %v", got, want)
	}

	foo := prog.Procedures[0]
	if foo.Start != 0x1002 || len(foo.Insts) != 2 || foo.Insts[0].Addr != 0x1002 || foo.Insts[1].Addr != 0x1003 {
		t.Errorf("foo = start %#x, %d insts", foo.Start, len(foo.Insts))
	}
	if foo.Length() != 2 {
		t.Errorf("foo length = %d, want 2", foo.Length())
	}
	bar := prog.Procedures[1]
	if bar.Start != 0x1005 || len(bar.Insts) != 2 || bar.Insts[0].Addr != 0x1005 || bar.Insts[1].Addr != 0x1006 {
		t.Errorf("bar = start %#x, %d insts", bar.Start, len(bar.Insts))
	}
	entry := prog.Procedures[2]
	if entry.Start != 0x800 || len(entry.Insts) != 3 {
		t.Errorf("_init = start %#x, %d insts; want 0x800, 3", entry.Start, len(entry.Insts))
	}
	if len(foo.Blocks) != 0 || len(bar.Blocks) != 0 {
		t.Error("procedures carry basic blocks")
	}

	wantStats := Stats{TextInsts: 7, Discarded: 2, Trimmed: 1, EntryInsts: 3}
	if prog.Stats != wantStats {
		t.Errorf("stats = %+v, want %+v", prog.Stats, wantStats)
	}
}

func TestRecoverExternalAndEntry(t *testing.T) {
	im := loadImage(t, elfxtest.Spec{
		TextAddr: 0x1000,
		Text:     []byte{0x55, 0xc3},
		InitAddr: 0x800,
		Init:     initBody,
		Syms: []elfxtest.Sym{
			{Name: "_init", Value: 0x800},
			{Name: "helper", Value: 0},
		},
	})

	prog, err := Recover(im, Options{})
	if err != nil {
		t.Fatalf("Recover failed: %v", err)
	}
	if len(prog.Procedures) != 2 {
		t.Fatalf("procedures = %v, want 2", procNames(prog))
	}
	entry, helper := prog.Procedures[0], prog.Procedures[1]
	if entry.Name() != "_init" || entry.Kind != ProcEntry || len(entry.Insts) != 3 {
		t.Errorf("first = %s/%s with %d insts", entry.Name(), entry.Kind, len(entry.Insts))
	}
	if entry.Insts[0].Inst.Mnemonic() != "endbr64" {
		t.Errorf("entry starts with %s", entry.Insts[0].Inst.Mnemonic())
	}
	if helper.Name() != "helper" || helper.Kind != ProcExternal || len(helper.Insts) != 0 {
		t.Errorf("second = %s/%s with %d insts", helper.Name(), helper.Kind, len(helper.Insts))
	}
	if prog.Stats.Discarded != 2 {
		t.Errorf("discarded = %d, want 2", prog.Stats.Discarded)
	}
}

func TestRecoverOrdering(t *testing.T) {
	code := []byte{
		0x55, 0xc3, // 0x1000 a
		0x53, 0xc3, // 0x1002 b, b2
		0x48, 0x89, 0xe5, // 0x1004 c; mid at 0x1005 is stray
		0xc3, // 0x1007 gap after mid
	}
	im := loadImage(t, elfxtest.Spec{
		TextAddr: 0x1000,
		Text:     code,
		InitAddr: 0x800,
		Init:     initBody,
		Syms: []elfxtest.Sym{
			{Name: "ext_b", Value: 0},
			{Name: "c", Value: 0x1004},
			{Name: "mid", Value: 0x1005},
			{Name: "b", Value: 0x1002},
			{Name: "table", Value: 0x1000, Type: elf.STT_OBJECT},
			{Name: "a", Value: 0x1000},
			{Name: "b2", Value: 0x1002},
			{Name: "_init", Value: 0x800},
			{Name: "ext_a", Value: 0},
		},
	})

	prog, err := Recover(im, Options{})
	if err != nil {
		t.Fatalf("Recover failed: %v", err)
	}

	want := []string{
		"a/text", "b/text", "c/text",
		"_init/entry",
		"b2/alias", "mid/stray",
		"ext_b/external", "ext_a/external",
	}
	if got := procNames(prog); fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("procedures = %v\nwant %v", got, want)
	}

	b := prog.Procedures[1]
	if len(b.Aliases) != 1 || b.Aliases[0].Name != "b2" {
		t.Errorf("b aliases = %v, want [b2]", b.Aliases)
	}
	if alias := prog.Procedures[4]; alias.AliasOf != "b" || len(alias.Insts) != 0 {
		t.Errorf("b2 = alias of %q with %d insts", alias.AliasOf, len(alias.Insts))
	}
	// c still ends at mid's address even though mid is never matched.
	if c := prog.Procedures[2]; len(c.Insts) != 1 {
		t.Errorf("c has %d insts, want 1", len(c.Insts))
	}

	wantStats := Stats{TextInsts: 6, Discarded: 1, EntryInsts: 3, Stray: 1, Aliases: 1, External: 2}
	if prog.Stats != wantStats {
		t.Errorf("stats = %+v, want %+v", prog.Stats, wantStats)
	}
}

func TestRecoverProperties(t *testing.T) {
	code := []byte{
		0x90,                   // leading
		0x55,                   // f1
		0xe8, 0x07, 0, 0, 0,    // call f2
		0x74, 0x00,             // jz
		0xc3,                   // ret
		0x0f, 0x1f, 0x40, 0x00, // padding
		0x53,                   // f2
		0xc3,                   // ret
		0x66, 0x90,             // padding
		0x90,                   // padding
	}
	im := loadImage(t, elfxtest.Spec{
		TextAddr: 0x401000,
		Text:     code,
		InitAddr: 0x400800,
		Init:     initBody,
		Syms: []elfxtest.Sym{
			{Name: "f2", Value: 0x40100e},
			{Name: "f1", Value: 0x401001},
			{Name: "_init", Value: 0x400800},
			{Name: "memcpy", Value: 0},
			{Name: "gone", Value: 0x402000},
		},
	})

	prog, err := Recover(im, Options{})
	if err != nil {
		t.Fatalf("Recover failed: %v", err)
	}

	t.Run("coverage", func(t *testing.T) {
		if len(prog.Procedures) != len(prog.Symbols) {
			t.Errorf("%d procedures for %d symbols", len(prog.Procedures), len(prog.Symbols))
		}
		seen := map[string]int{}
		for _, p := range prog.Procedures {
			seen[p.Name()]++
		}
		for _, s := range prog.Symbols {
			if seen[s.Name] != 1 {
				t.Errorf("symbol %s has %d procedures", s.Name, seen[s.Name])
			}
		}
	})

	t.Run("conservation", func(t *testing.T) {
		n := prog.Stats.Discarded + prog.Stats.Trimmed
		for _, p := range prog.Procedures {
			if p.Kind == ProcText {
				n += len(p.Insts)
			}
		}
		if n != prog.Stats.TextInsts {
			t.Errorf("accounted for %d of %d instructions", n, prog.Stats.TextInsts)
		}
		if prog.Stats.Trimmed != 3 || prog.Stats.Discarded != 1 {
			t.Errorf("trimmed %d discarded %d, want 3 and 1", prog.Stats.Trimmed, prog.Stats.Discarded)
		}
	})

	t.Run("ordering", func(t *testing.T) {
		var prev uint64
		for _, p := range prog.Procedures {
			if p.Kind != ProcText {
				continue
			}
			if p.Start <= prev {
				t.Errorf("%s at %#x after %#x", p.Name(), p.Start, prev)
			}
			prev = p.Start
		}
	})

	t.Run("trimming", func(t *testing.T) {
		for _, p := range prog.Procedures {
			if n := len(p.Insts); p.Kind == ProcText && n > 0 && p.Insts[n-1].Inst.IsNop() {
				t.Errorf("%s ends in a nop", p.Name())
			}
		}
	})

	t.Run("external", func(t *testing.T) {
		for _, p := range prog.Procedures {
			if p.Symbol.IsExternal() && len(p.Insts) != 0 {
				t.Errorf("external %s has %d insts", p.Name(), len(p.Insts))
			}
		}
	})

	t.Run("call target", func(t *testing.T) {
		f1 := prog.Procedures[0]
		call := f1.Insts[1]
		if !call.IsCall || call.Target.Addr != 0x40100e {
			t.Errorf("call = %+v to %#x, want call to f2", call.Class, call.Target.Addr)
		}
	})
}

func TestRecoverKeepPadding(t *testing.T) {
	im := loadImage(t, elfxtest.Spec{
		TextAddr: 0x1000,
		Text:     sevenInsts,
		InitAddr: 0x800,
		Init:     initBody,
		Syms: []elfxtest.Sym{
			{Name: "_init", Value: 0x800},
			{Name: "foo", Value: 0x1002},
			{Name: "bar", Value: 0x1005},
		},
	})
	prog, err := Recover(im, Options{KeepPadding: true})
	if err != nil {
		t.Fatalf("Recover failed: %v", err)
	}
	if n := len(prog.Procedures[0].Insts); n != 3 {
		t.Errorf("foo has %d insts, want 3", n)
	}
	if prog.Stats.Trimmed != 0 {
		t.Errorf("trimmed = %d, want 0", prog.Stats.Trimmed)
	}
}

func TestRecoverEntryErrors(t *testing.T) {
	text := []byte{0x55, 0xc3}

	tests := []struct {
		name      string
		spec      elfxtest.Spec
		opts      Options
		wantProcs []string
	}{
		{
			name: "missing entry symbol",
			spec: elfxtest.Spec{
				TextAddr: 0x1000, Text: text, InitAddr: 0x800, Init: initBody,
				Syms: []elfxtest.Sym{{Name: "main", Value: 0x1000}},
			},
			wantProcs: []string{"main/text"},
		},
		{
			name: "missing init section",
			spec: elfxtest.Spec{
				TextAddr: 0x1000, Text: text,
				Syms: []elfxtest.Sym{{Name: "main", Value: 0x1000}, {Name: "_init", Value: 0}},
			},
			wantProcs: []string{"main/text", "_init/entry"},
		},
		{
			name: "custom entry symbol",
			spec: elfxtest.Spec{
				TextAddr: 0x1000, Text: text, InitAddr: 0x800, Init: initBody,
				Syms: []elfxtest.Sym{{Name: "main", Value: 0x1000}, {Name: "_init", Value: 0x800}},
			},
			opts:      Options{EntrySymbol: "_start"},
			wantProcs: []string{"main/text", "_init/stray"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prog, err := Recover(loadImage(t, tt.spec), tt.opts)
			if !errors.Is(err, ErrEntrySymbolNotFound) {
				t.Fatalf("err = %v, want ErrEntrySymbolNotFound", err)
			}
			if prog == nil {
				t.Fatal("partial failure returned no program")
			}
			if got := procNames(prog); fmt.Sprint(got) != fmt.Sprint(tt.wantProcs) {
				t.Errorf("procedures = %v, want %v", got, tt.wantProcs)
			}
		})
	}
}

func TestRecoverFatalErrors(t *testing.T) {
	im := loadImage(t, elfxtest.Spec{
		TextAddr: 0x1000,
		Text:     []byte{0xc3},
		Syms:     []elfxtest.Sym{{Name: "table", Value: 0x2000, Type: elf.STT_OBJECT}},
	})
	if prog, err := Recover(im, Options{}); !errors.Is(err, ErrNoFunctionSymbols) || prog != nil {
		t.Errorf("Recover = %v, %v; want nil, ErrNoFunctionSymbols", prog, err)
	}

	im = loadImage(t, elfxtest.Spec{
		TextAddr: 0x1000,
		Text:     []byte{0xc3},
		InitAddr: 0x800,
		Init:     []byte{0xc3},
		Syms:     []elfxtest.Sym{{Name: "_init", Value: 0x800}, {Name: "main", Value: 0x1000}},
	})
	prog, err := Recover(im, Options{Checks: NewCheckChain(failingCheck{})})
	if !errors.Is(err, ErrInvariant) || prog != nil {
		t.Errorf("Recover = %v, %v; want nil, ErrInvariant", prog, err)
	}
}

type failingCheck struct{}

func (failingCheck) Name() string           { return "failing" }
func (failingCheck) Check(p *Program) error { return errors.New("always") }
