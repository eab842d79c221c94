package analysis

import (
	"cmp"
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/charmbracelet/log"

	"recompiler/internal/disasm"
	"recompiler/internal/elfx"
)

// ErrEntrySymbolNotFound is returned together with a usable Program when the
// entry symbol, or the section holding its body, is missing.
var ErrEntrySymbolNotFound = errors.New("entry symbol not found")

// Options controls Recover.
type Options struct {
	EntrySymbol string         // default DefaultEntrySymbol
	KeepPadding bool           // leave trailing no-ops in text procedures
	Decoder     disasm.Decoder // default disasm.AMD64
	Logger      *log.Logger    // default discards
	Checks      *CheckChain    // default DefaultChecks; use NewCheckChain() to skip
}

func (o Options) withDefaults() Options {
	if o.EntrySymbol == "" {
		o.EntrySymbol = DefaultEntrySymbol
	}
	if o.Decoder == nil {
		o.Decoder = disasm.AMD64{}
	}
	if o.Logger == nil {
		o.Logger = log.New(io.Discard)
	}
	if o.Checks == nil {
		o.Checks = DefaultChecks()
	}
	return o
}

// Recover partitions the image's code section into procedures and
// classifies their instructions.
//
// When the entry symbol or the initializer section is missing, the Program
// built for the remaining symbols is returned along with an error wrapping
// ErrEntrySymbolNotFound. Any other error leaves the Program nil.
func Recover(im *elfx.Image, opts Options) (*Program, error) {
	opts = opts.withDefaults()
	lg := opts.Logger

	idx, err := BuildIndex(im.Syms)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", im.Path, err)
	}
	lg.Debug("symbol index", "symbols", idx.String())

	prog := &Program{
		Path:     im.Path,
		TextBase: im.Text.VA,
		Symbols:  im.FuncSymbols(),
	}

	entry, hasEntry := idx.Take(opts.EntrySymbol)

	stream := opts.Decoder.Decode(im.Text.Data)
	prog.Stats.TextInsts = len(stream)
	lg.Debug("decoded code section", "section", im.Text.Name, "base", fmt.Sprintf("%#x", im.Text.VA), "insts", len(stream))

	parts, err := Partition(stream, idx.Addressed, im.Text.VA)
	if err != nil {
		return nil, err
	}

	var unmatched []Procedure
	for _, sl := range parts.Slices {
		insts := sl.Insts
		if opts.KeepPadding {
			insts = append(insts, sl.Trimmed...)
		} else if len(sl.Trimmed) > 0 {
			prog.Stats.Trimmed += len(sl.Trimmed)
			lg.Debug("trimmed padding", "symbol", sl.Sym.Name, "nops", len(sl.Trimmed))
		}
		prog.Procedures = append(prog.Procedures, Procedure{
			Symbol:    sl.Sym,
			Demangled: CachedDemangle(sl.Sym.Name),
			Kind:      ProcText,
			Start:     sl.Start,
			Insts:     ClassifyStream(insts, im.Text.VA),
			Aliases:   sl.Aliases,
		})
		for _, a := range sl.Aliases {
			unmatched = append(unmatched, Procedure{
				Symbol:    a,
				Demangled: CachedDemangle(a.Name),
				Kind:      ProcAlias,
				Start:     a.Addr,
				AliasOf:   sl.Sym.Name,
			})
		}
	}
	prog.Stats.Aliases = len(unmatched)

	for _, s := range parts.Stray {
		lg.Debug("stray symbol", "symbol", s.Name, "addr", fmt.Sprintf("%#x", s.Addr))
		unmatched = append(unmatched, Procedure{
			Symbol:    s,
			Demangled: CachedDemangle(s.Name),
			Kind:      ProcStray,
			Start:     s.Addr,
		})
	}
	prog.Stats.Stray = len(parts.Stray)
	prog.Stats.Discarded = len(parts.Discarded)
	if len(parts.Discarded) > 0 {
		lg.Debug("discarded instructions", "count", len(parts.Discarded))
	}

	var entryErr error
	if hasEntry {
		proc := Procedure{
			Symbol:    entry,
			Demangled: CachedDemangle(entry.Name),
			Kind:      ProcEntry,
			Start:     entry.Addr,
		}
		if im.Init.Present() {
			proc.Start = im.Init.VA
			proc.Insts = ClassifyStream(opts.Decoder.Decode(im.Init.Data), im.Init.VA)
			prog.Stats.EntryInsts = len(proc.Insts)
		} else {
			entryErr = fmt.Errorf("%w: %s has no initializer section", ErrEntrySymbolNotFound, opts.EntrySymbol)
		}
		prog.Procedures = append(prog.Procedures, proc)
	} else {
		entryErr = fmt.Errorf("%w: %s", ErrEntrySymbolNotFound, opts.EntrySymbol)
	}

	slices.SortStableFunc(unmatched, func(a, b Procedure) int {
		if c := cmp.Compare(a.Start, b.Start); c != 0 {
			return c
		}
		return cmp.Compare(a.Symbol.Index, b.Symbol.Index)
	})
	prog.Procedures = append(prog.Procedures, unmatched...)

	for _, s := range idx.External {
		prog.Procedures = append(prog.Procedures, Procedure{
			Symbol:    s,
			Demangled: CachedDemangle(s.Name),
			Kind:      ProcExternal,
		})
	}
	prog.Stats.External = len(idx.External)

	if err := opts.Checks.Check(prog); err != nil {
		return nil, err
	}
	lg.Debug("recovered procedures", "procedures", len(prog.Procedures), "stray", prog.Stats.Stray, "aliases", prog.Stats.Aliases)
	if names, hits := DemangleCacheStats(); names > 0 {
		lg.Debug("demangle cache", "names", names, "hits", hits)
	}

	if entryErr != nil {
		lg.Warn("entry point", "err", entryErr)
		return prog, entryErr
	}
	return prog, nil
}
