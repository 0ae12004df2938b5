package pattern

import (
	"errors"
	"image"
	"testing"
)

// fakePanel records draws into a plain pixel slice.
type fakePanel struct {
	rect  image.Rectangle
	pix   []uint16
	calls int
	fail  int
}

func newFake(w, h int) *fakePanel {
	return &fakePanel{rect: image.Rect(0, 0, w, h), pix: make([]uint16, w*h), fail: -1}
}

func (f *fakePanel) Bounds() image.Rectangle { return f.rect }

func (f *fakePanel) DrawRect(x0, y0, x1, y1 int, px []uint16) error {
	if f.calls == f.fail {
		return errors.New("flush failed")
	}
	f.calls++
	w := x1 - x0
	if len(px) != w*(y1-y0) {
		return errors.New("bad size")
	}
	for y := y0; y < y1; y++ {
		copy(f.pix[y*f.rect.Dx()+x0:], px[(y-y0)*w:(y-y0+1)*w])
	}
	return nil
}

func (f *fakePanel) at(x, y int) uint16 { return f.pix[y*f.rect.Dx()+x] }

func TestFillRowByRow(t *testing.T) {
	p := newFake(480, 480)
	if err := Fill(p, Red); err != nil {
		t.Fatal(err)
	}
	if p.calls != 480 {
		t.Errorf("calls = %d, want one per row", p.calls)
	}
	for i, v := range p.pix {
		if v != 0xF800 {
			t.Fatalf("pixel %d = 0x%04X", i, v)
		}
	}
}

func TestFillStopsOnError(t *testing.T) {
	p := newFake(10, 10)
	p.fail = 3
	if err := Fill(p, White); err == nil {
		t.Fatal("expected error")
	}
	if p.calls != 3 {
		t.Errorf("calls = %d", p.calls)
	}
}

func TestBars(t *testing.T) {
	row := Bars(10, Red, Green, Blue)
	want := []uint16{Red, Red, Red, Green, Green, Green, Blue, Blue, Blue, Blue}
	for i := range want {
		if row[i] != want[i] {
			t.Fatalf("row = %v", row)
		}
	}
	if r := Bars(2, Red, Green, Blue); r[0] != Red || r[1] != Red {
		t.Errorf("narrow row = %v", r)
	}
	if r := Bars(3); r[0] != Black {
		t.Errorf("no colors = %v", r)
	}
}

func TestChecker(t *testing.T) {
	p := newFake(8, 8)
	if err := FillChecker(p, 2, White, Black); err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		x, y int
		want uint16
	}{
		{0, 0, White}, {1, 1, White}, {2, 0, Black}, {0, 2, Black}, {2, 2, White}, {7, 7, White},
	}
	for _, tt := range tests {
		if got := p.at(tt.x, tt.y); got != tt.want {
			t.Errorf("(%d,%d) = 0x%04X, want 0x%04X", tt.x, tt.y, got, tt.want)
		}
	}
}

func TestLookup(t *testing.T) {
	if _, err := Lookup(" RED "); err != nil {
		t.Error(err)
	}
	if _, err := Lookup("plaid"); err == nil {
		t.Error("expected error")
	}
	names := Names()
	if len(names) != 7 || names[0] != "bars" {
		t.Errorf("names = %v", names)
	}
}

func TestCycle(t *testing.T) {
	if _, err := NewCycle(); err == nil {
		t.Error("empty cycle accepted")
	}
	if _, err := NewCycle("red", "nope"); err == nil {
		t.Error("unknown name accepted")
	}

	c, err := NewCycle("red", "blue")
	if err != nil {
		t.Fatal(err)
	}
	p := newFake(4, 4)
	for _, want := range []string{"red", "blue", "red"} {
		got, err := c.Step(p)
		if err != nil || got != want {
			t.Fatalf("Step = %s, %v, want %s", got, err, want)
		}
		if c.Current() != want {
			t.Errorf("Current = %s", c.Current())
		}
	}
	if p.at(0, 0) != Red {
		t.Errorf("pixel = 0x%04X", p.at(0, 0))
	}
}
