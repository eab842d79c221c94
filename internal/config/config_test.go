package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	tomlContent := `
debug = true

[sections]
text = ".text.hot"

[recover]
entry-symbol = "_start"
keep-padding = true
`
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(tomlContent), 0644); err != nil {
		t.Fatal(err)
	}

	c, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if !c.Debug {
		t.Error("debug = false, want true")
	}
	if c.Sections.Text != ".text.hot" {
		t.Errorf("text section = %q, want .text.hot", c.Sections.Text)
	}
	if c.Sections.Init != ".init" {
		t.Errorf("init section = %q, want default .init", c.Sections.Init)
	}
	if c.Recover.EntrySymbol != "_start" {
		t.Errorf("entry symbol = %q, want _start", c.Recover.EntrySymbol)
	}
	if !c.Recover.KeepPadding {
		t.Error("keep-padding = false, want true")
	}

	opts := c.RecoverOptions()
	if opts.EntrySymbol != "_start" || !opts.KeepPadding {
		t.Errorf("RecoverOptions = %+v", opts)
	}
	if img := c.ImageOptions(); img.TextSection != ".text.hot" || img.InitSection != ".init" {
		t.Errorf("ImageOptions = %+v", img)
	}
}

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte("debug = false\n"), 0644); err != nil {
		t.Fatal(err)
	}

	c, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	want := Default()
	if c.Sections != want.Sections || c.Recover != want.Recover {
		t.Errorf("got %+v %+v, want %+v %+v", c.Sections, c.Recover, want.Sections, want.Recover)
	}
	if c.Recover.EntrySymbol != "_init" {
		t.Errorf("entry symbol = %q, want _init", c.Recover.EntrySymbol)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(t.TempDir()); err == nil {
		t.Error("expected error for missing file")
	}

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte("[recover\nentry-symbol = 1"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(dir); err == nil {
		t.Error("expected parse error")
	}
}

func TestFindAndLoad(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, FileName), []byte("[recover]\nentry-symbol = \"_start\"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	nested := filepath.Join(root, "build", "bin")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}

	c, err := FindAndLoad(nested)
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if c.Recover.EntrySymbol != "_start" {
		t.Errorf("entry symbol = %q, want _start", c.Recover.EntrySymbol)
	}
	abs, _ := filepath.Abs(root)
	if c.Dir != abs {
		t.Errorf("dir = %q, want %q", c.Dir, abs)
	}
}
