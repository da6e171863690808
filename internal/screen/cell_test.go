package screen

import "testing"

func TestCellHasAttr(t *testing.T) {
	c := Cell{Attrs: AttrBold | AttrUnderline}
	if !c.Has(AttrBold) || !c.Has(AttrUnderline) {
		t.Fatal("expected bold and underline set")
	}
	if c.Has(AttrItalic) || c.Has(AttrInverse) {
		t.Fatal("did not expect italic or inverse set")
	}
}

func TestBlankIsSpace(t *testing.T) {
	c := Blank()
	if c.Char != ' ' {
		t.Fatalf("Blank().Char = %q, want ' '", c.Char)
	}
	if c.Fg != Default || c.Bg != Default {
		t.Fatal("Blank() should have default colors")
	}
}
