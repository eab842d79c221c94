// Package elfxtest builds small ELF64 x86-64 images in memory for tests.
package elfxtest

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

// Sym describes one symbol table entry. Type defaults to STT_FUNC.
type Sym struct {
	Name  string
	Value uint64
	Size  uint64
	Type  elf.SymType
}

// Spec describes the image to build. A nil Init omits the .init section and
// NoSymtab omits .symtab/.strtab.
type Spec struct {
	Machine  elf.Machine
	TextName string
	TextAddr uint64
	Text     []byte
	InitAddr uint64
	Init     []byte
	NoSymtab bool
	Syms     []Sym
}

type section struct {
	name  string
	hdr   elf.Section64
	data  []byte
	align uint64
}

// Build returns the encoded image.
func Build(s Spec) []byte {
	if s.Machine == 0 {
		s.Machine = elf.EM_X86_64
	}
	if s.TextName == "" {
		s.TextName = ".text"
	}

	var secs []*section
	text := &section{
		name:  s.TextName,
		data:  s.Text,
		align: 16,
		hdr: elf.Section64{
			Type:  uint32(elf.SHT_PROGBITS),
			Flags: uint64(elf.SHF_ALLOC | elf.SHF_EXECINSTR),
			Addr:  s.TextAddr,
		},
	}
	secs = append(secs, text)
	textIdx := len(secs)

	initIdx := -1
	if s.Init != nil {
		secs = append(secs, &section{
			name:  ".init",
			data:  s.Init,
			align: 4,
			hdr: elf.Section64{
				Type:  uint32(elf.SHT_PROGBITS),
				Flags: uint64(elf.SHF_ALLOC | elf.SHF_EXECINSTR),
				Addr:  s.InitAddr,
			},
		})
		initIdx = len(secs)
	}

	if !s.NoSymtab {
		var strtab bytes.Buffer
		strtab.WriteByte(0)
		var symtab bytes.Buffer
		binary.Write(&symtab, binary.LittleEndian, elf.Sym64{})
		for _, sym := range s.Syms {
			typ := sym.Type
			if typ == 0 {
				typ = elf.STT_FUNC
			}
			shndx := uint16(elf.SHN_UNDEF)
			switch {
			case sym.Value == 0:
			case sym.Value >= s.TextAddr && sym.Value < s.TextAddr+uint64(len(s.Text)):
				shndx = uint16(textIdx)
			case initIdx > 0 && sym.Value >= s.InitAddr && sym.Value < s.InitAddr+uint64(len(s.Init)):
				shndx = uint16(initIdx)
			default:
				shndx = uint16(elf.SHN_ABS)
			}
			binary.Write(&symtab, binary.LittleEndian, elf.Sym64{
				Name:  uint32(strtab.Len()),
				Info:  elf.ST_INFO(elf.STB_GLOBAL, typ),
				Shndx: shndx,
				Value: sym.Value,
				Size:  sym.Size,
			})
			strtab.WriteString(sym.Name)
			strtab.WriteByte(0)
		}
		secs = append(secs, &section{
			name:  ".symtab",
			data:  symtab.Bytes(),
			align: 8,
			hdr: elf.Section64{
				Type:    uint32(elf.SHT_SYMTAB),
				Link:    uint32(len(secs) + 2), // .strtab follows
				Info:    1,
				Entsize: elf.Sym64Size,
			},
		})
		secs = append(secs, &section{
			name:  ".strtab",
			data:  strtab.Bytes(),
			align: 1,
			hdr:   elf.Section64{Type: uint32(elf.SHT_STRTAB)},
		})
	}

	var shstrtab bytes.Buffer
	shstrtab.WriteByte(0)
	shstr := &section{
		name:  ".shstrtab",
		align: 1,
		hdr:   elf.Section64{Type: uint32(elf.SHT_STRTAB)},
	}
	secs = append(secs, shstr)
	for _, sec := range secs {
		sec.hdr.Name = uint32(shstrtab.Len())
		shstrtab.WriteString(sec.name)
		shstrtab.WriteByte(0)
	}
	shstr.data = shstrtab.Bytes()

	var body bytes.Buffer
	off := uint64(64) // ELF64 header size
	for _, sec := range secs {
		for off%sec.align != 0 {
			body.WriteByte(0)
			off++
		}
		sec.hdr.Off = off
		sec.hdr.Size = uint64(len(sec.data))
		sec.hdr.Addralign = sec.align
		body.Write(sec.data)
		off += uint64(len(sec.data))
	}
	for off%8 != 0 {
		body.WriteByte(0)
		off++
	}

	hdr := elf.Header64{
		Type:      uint16(elf.ET_EXEC),
		Machine:   uint16(s.Machine),
		Version:   uint32(elf.EV_CURRENT),
		Entry:     s.TextAddr,
		Shoff:     off,
		Ehsize:    64,
		Phentsize: 56,
		Shentsize: 64,
		Shnum:     uint16(len(secs) + 1),
		Shstrndx:  uint16(len(secs)),
	}
	copy(hdr.Ident[:], elf.ELFMAG)
	hdr.Ident[elf.EI_CLASS] = byte(elf.ELFCLASS64)
	hdr.Ident[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	hdr.Ident[elf.EI_VERSION] = byte(elf.EV_CURRENT)

	var out bytes.Buffer
	binary.Write(&out, binary.LittleEndian, hdr)
	out.Write(body.Bytes())
	binary.Write(&out, binary.LittleEndian, elf.Section64{})
	for _, sec := range secs {
		binary.Write(&out, binary.LittleEndian, sec.hdr)
	}
	return out.Bytes()
}

// WriteFile builds the image into a file under t.TempDir and returns its path.
func WriteFile(t testing.TB, s Spec) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "a.out")
	if err := os.WriteFile(path, Build(s), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}
