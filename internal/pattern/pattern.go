// Package pattern draws test patterns on a panel, one full-width row per
// DrawRect call, the way the bring-up check fills the screen.
package pattern

import (
	"fmt"
	"image"
	"sort"
	"strings"
	"sync"
)

// RGB565 values. Callers supply pixels already in panel format.
const (
	Black   uint16 = 0x0000
	Blue    uint16 = 0x001F
	Green   uint16 = 0x07E0
	Cyan    uint16 = 0x07FF
	Red     uint16 = 0xF800
	Magenta uint16 = 0xF81F
	Yellow  uint16 = 0xFFE0
	White   uint16 = 0xFFFF
)

// Drawer is the part of the panel patterns need.
type Drawer interface {
	DrawRect(x0, y0, x1, y1 int, pixels []uint16) error
	Bounds() image.Rectangle
}

// Row returns width pixels of color c.
func Row(width int, c uint16) []uint16 {
	row := make([]uint16, width)
	for i := range row {
		row[i] = c
	}
	return row
}

// Bars returns one row split into equal vertical bars, left to right. The
// last bar absorbs the remainder.
func Bars(width int, colors ...uint16) []uint16 {
	row := make([]uint16, width)
	if len(colors) == 0 {
		return row
	}
	w := width / len(colors)
	for i := range row {
		k := 0
		if w > 0 {
			k = min(i/w, len(colors)-1)
		}
		row[i] = colors[k]
	}
	return row
}

// Checker returns the two rows of a checkerboard with square cells.
func Checker(width, cell int, a, b uint16) (even, odd []uint16) {
	if cell <= 0 {
		cell = 1
	}
	even = make([]uint16, width)
	odd = make([]uint16, width)
	for x := range even {
		if (x/cell)%2 == 0 {
			even[x], odd[x] = a, b
		} else {
			even[x], odd[x] = b, a
		}
	}
	return even, odd
}

// Fill paints the whole panel with c.
func Fill(d Drawer, c uint16) error {
	row := Row(d.Bounds().Dx(), c)
	return drawRows(d, func(int) []uint16 { return row })
}

// FillBars paints vertical color bars.
func FillBars(d Drawer, colors ...uint16) error {
	row := Bars(d.Bounds().Dx(), colors...)
	return drawRows(d, func(int) []uint16 { return row })
}

// FillChecker paints a checkerboard of cell-sized squares.
func FillChecker(d Drawer, cell int, a, b uint16) error {
	if cell <= 0 {
		cell = 1
	}
	even, odd := Checker(d.Bounds().Dx(), cell, a, b)
	top := d.Bounds().Min.Y
	return drawRows(d, func(y int) []uint16 {
		if ((y-top)/cell)%2 == 0 {
			return even
		}
		return odd
	})
}

func drawRows(d Drawer, rowAt func(y int) []uint16) error {
	r := d.Bounds()
	for y := r.Min.Y; y < r.Max.Y; y++ {
		if err := d.DrawRect(r.Min.X, y, r.Max.X, y+1, rowAt(y)); err != nil {
			return fmt.Errorf("pattern: row %d: %w", y, err)
		}
	}
	return nil
}

// Func draws one named pattern.
type Func func(d Drawer) error

func solid(c uint16) Func {
	return func(d Drawer) error { return Fill(d, c) }
}

var patterns = map[string]Func{
	"black":   solid(Black),
	"white":   solid(White),
	"red":     solid(Red),
	"green":   solid(Green),
	"blue":    solid(Blue),
	"bars":    func(d Drawer) error { return FillBars(d, White, Yellow, Cyan, Green, Magenta, Red, Blue, Black) },
	"checker": func(d Drawer) error { return FillChecker(d, 40, White, Black) },
}

// Names lists the known patterns, sorted.
func Names() []string {
	out := make([]string, 0, len(patterns))
	for k := range patterns {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Lookup returns the pattern called name.
func Lookup(name string) (Func, error) {
	f, ok := patterns[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("pattern: unknown pattern %q (known: %s)", name, strings.Join(Names(), ", "))
	}
	return f, nil
}

// Draw draws the pattern called name.
func Draw(d Drawer, name string) error {
	f, err := Lookup(name)
	if err != nil {
		return err
	}
	return f(d)
}

// Cycle steps through a fixed list of patterns. Safe for concurrent use.
type Cycle struct {
	mu    sync.Mutex
	names []string
	next  int
	cur   string
}

// NewCycle validates names up front.
func NewCycle(names ...string) (*Cycle, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("pattern: empty cycle")
	}
	for _, n := range names {
		if _, err := Lookup(n); err != nil {
			return nil, err
		}
	}
	return &Cycle{names: append([]string(nil), names...)}, nil
}

// Step draws the next pattern and returns its name.
func (c *Cycle) Step(d Drawer) (string, error) {
	c.mu.Lock()
	name := c.names[c.next]
	c.next = (c.next + 1) % len(c.names)
	c.mu.Unlock()

	if err := Draw(d, name); err != nil {
		return name, err
	}
	c.mu.Lock()
	c.cur = name
	c.mu.Unlock()
	return name, nil
}

// Current is the last pattern drawn successfully.
func (c *Cycle) Current() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cur
}
