package theme

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultPalette(t *testing.T) {
	p := DefaultPalette()
	if p.Name != "plasma" || len(p.Colors) != 11 {
		t.Fatalf("palette = %s with %d colors", p.Name, len(p.Colors))
	}
	if got := p.Lookup(0).Hex(); got != "#0d0887" {
		t.Fatalf("Lookup(0) = %s", got)
	}
	if got := p.Lookup(1).Hex(); got != "#f0f921" {
		t.Fatalf("Lookup(1) = %s", got)
	}
}

func TestParseGPLSkipsJunk(t *testing.T) {
	src := "GIMP Palette\nName: two\nColumns: 2\n# comment\n0 0 0 black\nnot a color\n300 0 0 bad\n255 255 255\n"
	p, err := ParseGPL(strings.NewReader(src))
	if err != nil {
		t.Fatalf("ParseGPL: %v", err)
	}
	if len(p.Colors) != 2 {
		t.Fatalf("colors = %v", p.Colors)
	}
	if mid := p.Lookup(0.5); mid != (RGB{127, 127, 127}) {
		t.Fatalf("Lookup(0.5) = %v", mid)
	}
}

func TestParseGPLEmpty(t *testing.T) {
	if _, err := ParseGPL(strings.NewReader("GIMP Palette\n")); err == nil {
		t.Fatalf("expected error for a palette without colors")
	}
}

func TestLoadGPL(t *testing.T) {
	p, err := LoadGPL("")
	if err != nil || p.Name != "plasma" {
		t.Fatalf("LoadGPL(\"\") = %v, %v", p, err)
	}

	path := filepath.Join(t.TempDir(), "mono.gpl")
	os.WriteFile(path, []byte("GIMP Palette\n10 20 30\n"), 0644)
	p, err = LoadGPL(path)
	if err != nil {
		t.Fatalf("LoadGPL: %v", err)
	}
	if p.Lookup(0.7) != (RGB{10, 20, 30}) {
		t.Fatalf("single colour palette lookup = %v", p.Lookup(0.7))
	}

	if _, err := LoadGPL(filepath.Join(t.TempDir(), "missing.gpl")); err == nil {
		t.Fatalf("expected error for a missing file")
	}
}

func TestThemeRoles(t *testing.T) {
	th := New(nil)
	if th.BG() != "#0d0887" || th.Success() != "#f0f921" {
		t.Fatalf("roles = %s %s", th.BG(), th.Success())
	}
}
