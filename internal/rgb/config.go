package rgb

import (
	"errors"
	"fmt"
	"strings"

	"periph.io/x/conn/v3/physic"
)

var (
	// ErrConfig is returned for a configuration the interface cannot drive.
	ErrConfig = errors.New("rgb: invalid configuration")
	// ErrOutOfBounds is returned by DrawRect for a rectangle outside the
	// frame or a pixel slice of the wrong size.
	ErrOutOfBounds = errors.New("rgb: rectangle out of bounds")
)

// MaxPixelClock is the fastest pixel clock the interface generates.
const MaxPixelClock = 40 * physic.MegaHertz

// BytesPerPixel of the RGB565 frame buffer.
const BytesPerPixel = 2

// Placement selects the memory holding the frame buffer.
type Placement uint8

const (
	Internal Placement = iota
	External
)

// Frame buffer capacity per placement.
const (
	InternalCapacity = 512 * 1024
	ExternalCapacity = 8 * 1024 * 1024
)

func (p Placement) Capacity() int {
	if p == External {
		return ExternalCapacity
	}
	return InternalCapacity
}

func (p Placement) String() string {
	if p == External {
		return "external"
	}
	return "internal"
}

// ParsePlacement accepts "internal" or "external".
func ParsePlacement(s string) (Placement, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "internal":
		return Internal, nil
	case "external", "":
		return External, nil
	}
	return 0, fmt.Errorf("%w: unknown frame buffer placement %q", ErrConfig, s)
}

// Pins names the wires of the parallel interface. Disp is optional.
type Pins struct {
	PCLK  string
	HSync string
	VSync string
	DE    string
	Disp  string
	Data  []string
}

// all returns every pin name, Disp only when set.
func (p Pins) all() []string {
	out := []string{p.PCLK, p.HSync, p.VSync, p.DE}
	if p.Disp != "" {
		out = append(out, p.Disp)
	}
	return append(out, p.Data...)
}

// dataSide returns the pins claimed as data lines: pixel clock, data enable,
// display enable and the data bus.
func (p Pins) dataSide() []string {
	out := []string{p.PCLK, p.DE}
	if p.Disp != "" {
		out = append(out, p.Disp)
	}
	return append(out, p.Data...)
}

// Config fully describes the parallel interface.
type Config struct {
	Timing     Timing
	BusWidth   int
	Placement  Placement
	TransAlign int
	Pins       Pins
}

// DefaultConfig is the 480x480 panel on the reference board: 16-bit bus at
// 15MHz, frame buffer in external memory.
func DefaultConfig() Config {
	return Config{
		Timing: Timing{
			PixelClock: 15 * physic.MegaHertz,
			HRes:       480,
			VRes:       480,
			HSync:      Porch{PulseWidth: 10, BackPorch: 40, FrontPorch: 8},
			VSync:      Porch{PulseWidth: 10, BackPorch: 40, FrontPorch: 8},
		},
		BusWidth:   16,
		Placement:  External,
		TransAlign: 64,
		Pins: Pins{
			PCLK:  "GPIO39",
			HSync: "GPIO42",
			VSync: "GPIO41",
			DE:    "GPIO40",
			Data: []string{
				"GPIO45", "GPIO48", "GPIO47", "GPIO0", "GPIO21", // B0-B4
				"GPIO14", "GPIO13", "GPIO12", "GPIO11", "GPIO16", "GPIO17", // G0-G5
				"GPIO18", "GPIO8", "GPIO3", "GPIO46", "GPIO10", // R0-R4
			},
		},
	}
}

// Stride is the row length in pixels, padded so every row starts on a
// TransAlign byte boundary.
func (c Config) Stride() int {
	row := c.Timing.HRes * BytesPerPixel
	if c.TransAlign > 1 {
		row = (row + c.TransAlign - 1) / c.TransAlign * c.TransAlign
	}
	return row / BytesPerPixel
}

// FrameBytes is the size of the frame buffer.
func (c Config) FrameBytes() int {
	return c.Stride() * c.Timing.VRes * BytesPerPixel
}

// Validate reports the first problem with c.
func (c Config) Validate() error {
	t := c.Timing
	switch {
	case c.BusWidth != 16:
		return fmt.Errorf("%w: bus width %d, only 16-bit RGB565 is supported", ErrConfig, c.BusWidth)
	case len(c.Pins.Data) != c.BusWidth:
		return fmt.Errorf("%w: %d data pins for a %d-bit bus", ErrConfig, len(c.Pins.Data), c.BusWidth)
	case t.HRes <= 0 || t.VRes <= 0:
		return fmt.Errorf("%w: resolution %dx%d", ErrConfig, t.HRes, t.VRes)
	case !t.HSync.valid() || !t.VSync.valid():
		return fmt.Errorf("%w: sync timing %s", ErrConfig, t)
	case t.PixelClock <= 0 || t.PixelClock > MaxPixelClock:
		return fmt.Errorf("%w: pixel clock %s outside (0, %s]", ErrConfig, t.PixelClock, MaxPixelClock)
	case c.TransAlign <= 0 || c.TransAlign&(c.TransAlign-1) != 0:
		return fmt.Errorf("%w: transfer alignment %d is not a power of two", ErrConfig, c.TransAlign)
	case c.Placement != Internal && c.Placement != External:
		return fmt.Errorf("%w: placement %d", ErrConfig, c.Placement)
	case c.FrameBytes() > c.Placement.Capacity():
		return fmt.Errorf("%w: frame buffer of %d bytes does not fit %s memory (%d bytes)",
			ErrConfig, c.FrameBytes(), c.Placement, c.Placement.Capacity())
	}

	seen := make(map[string]bool)
	for _, n := range c.Pins.all() {
		if n == "" {
			return fmt.Errorf("%w: missing pin name", ErrConfig)
		}
		if seen[n] {
			return fmt.Errorf("%w: pin %s used twice", ErrConfig, n)
		}
		seen[n] = true
	}
	return nil
}
