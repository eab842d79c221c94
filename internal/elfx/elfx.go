// Package elfx provides helpers for opening ELF executables and copying out the
// code sections and function symbols the recompiler front end works on.
package elfx

import (
	"debug/elf"
	"errors"
	"fmt"
	"io"
	"os"
)

// Default section names.
const (
	TextSection = ".text"
	InitSection = ".init"
	SymtabName  = ".symtab"
)

var (
	// ErrMissingSection is returned when the code section or the symbol table
	// is absent from the image.
	ErrMissingSection = errors.New("missing section")
	// ErrUnsupportedMachine is returned for anything that is not x86-64.
	ErrUnsupportedMachine = errors.New("unsupported machine")
)

// Image is an in-memory copy of the parts of an executable needed for
// procedure recovery. It holds no file handle.
type Image struct {
	Path    string
	Machine elf.Machine
	Type    elf.Type
	Entry   uint64
	Text    Section
	Init    Section
	Syms    []Symbol
}

// Section is a copied section. A zero Section means the section was absent.
type Section struct {
	Name          string
	VA, Off, Size uint64
	Data          []byte
}

// Present reports whether the section existed in the image.
func (s Section) Present() bool {
	return s.Name != ""
}

// Contains reports whether va lies inside the section.
func (s Section) Contains(va uint64) bool {
	return s.Present() && va >= s.VA && va < s.VA+s.Size
}

// Symbol is one entry of the static symbol table.
type Symbol struct {
	Name  string
	Addr  uint64
	Size  uint64
	Kind  elf.SymType
	Index int // position in .symtab, 1-based like the ELF table itself
}

// IsFunc reports whether the symbol is function-typed.
func (s Symbol) IsFunc() bool {
	return s.Kind == elf.STT_FUNC
}

// IsExternal reports whether the symbol has no local body.
func (s Symbol) IsExternal() bool {
	return s.Addr == 0
}

// Options selects which sections are copied.
type Options struct {
	TextSection string
	InitSection string
}

func (o Options) withDefaults() Options {
	if o.TextSection == "" {
		o.TextSection = TextSection
	}
	if o.InitSection == "" {
		o.InitSection = InitSection
	}
	return o
}

// Open reads the executable at path. The file is closed before Open returns,
// on success and on every error path.
func Open(path string, opts Options) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	im, err := Load(f, opts)
	if err != nil {
		return nil, err
	}
	im.Path = path
	return im, nil
}

// Load parses an ELF image from r and copies the configured sections and the
// symbol table into memory.
func Load(r io.ReaderAt, opts Options) (*Image, error) {
	opts = opts.withDefaults()

	f, err := elf.NewFile(r)
	if err != nil {
		return nil, fmt.Errorf("parse elf: %w", err)
	}
	defer f.Close()

	if f.Machine != elf.EM_X86_64 {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMachine, f.Machine)
	}

	im := &Image{
		Machine: f.Machine,
		Type:    f.Type,
		Entry:   f.Entry,
	}

	text := f.Section(opts.TextSection)
	if text == nil {
		return nil, fmt.Errorf("%w: %s", ErrMissingSection, opts.TextSection)
	}
	if im.Text, err = copySection(text); err != nil {
		return nil, err
	}

	// The initializer section is optional here; the recovery driver decides
	// what its absence means.
	if init := f.Section(opts.InitSection); init != nil {
		if im.Init, err = copySection(init); err != nil {
			return nil, err
		}
	}

	if f.Section(SymtabName) == nil {
		return nil, fmt.Errorf("%w: %s", ErrMissingSection, SymtabName)
	}
	syms, err := f.Symbols()
	if err != nil {
		if errors.Is(err, elf.ErrNoSymbols) {
			return nil, fmt.Errorf("%w: %s", ErrMissingSection, SymtabName)
		}
		return nil, fmt.Errorf("read symbols: %w", err)
	}
	im.Syms = make([]Symbol, 0, len(syms))
	for i, s := range syms {
		im.Syms = append(im.Syms, Symbol{
			Name:  s.Name,
			Addr:  s.Value,
			Size:  s.Size,
			Kind:  elf.ST_TYPE(s.Info),
			Index: i + 1, // Symbols() drops the reserved null entry
		})
	}
	return im, nil
}

func copySection(s *elf.Section) (Section, error) {
	data, err := s.Data()
	if err != nil && err != io.EOF {
		return Section{}, fmt.Errorf("read %s section: %w", s.Name, err)
	}
	return Section{
		Name: s.Name,
		VA:   s.Addr,
		Off:  s.Offset,
		Size: s.Size,
		Data: data,
	}, nil
}

// FuncSymbols returns the function-typed symbols in table order.
func (im *Image) FuncSymbols() []Symbol {
	var out []Symbol
	for _, s := range im.Syms {
		if s.IsFunc() {
			out = append(out, s)
		}
	}
	return out
}

// FindFunctionByName returns the first function symbol with the given name.
func (im *Image) FindFunctionByName(name string) (Symbol, bool) {
	for _, s := range im.Syms {
		if s.IsFunc() && s.Name == name {
			return s, true
		}
	}
	return Symbol{}, false
}
