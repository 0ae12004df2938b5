package rgb

import (
	"fmt"

	"periph.io/x/conn/v3/physic"
)

// Porch describes one axis of the sync timing, in pixel clocks for the
// horizontal axis and in lines for the vertical one.
type Porch struct {
	PulseWidth int
	BackPorch  int
	FrontPorch int
}

// Blanking is the non-visible part of the axis.
func (p Porch) Blanking() int {
	return p.PulseWidth + p.BackPorch + p.FrontPorch
}

func (p Porch) valid() bool {
	return p.PulseWidth > 0 && p.BackPorch >= 0 && p.FrontPorch >= 0
}

// Timing is the video timing streamed to the panel. It cannot change once the
// panel is open.
type Timing struct {
	PixelClock physic.Frequency
	HRes, VRes int
	HSync      Porch
	VSync      Porch
}

// LineClocks is the number of pixel clocks per line, blanking included.
func (t Timing) LineClocks() int {
	return t.HRes + t.HSync.Blanking()
}

// FrameLines is the number of lines per frame, blanking included.
func (t Timing) FrameLines() int {
	return t.VRes + t.VSync.Blanking()
}

// RefreshRate is the resulting frame rate.
func (t Timing) RefreshRate() physic.Frequency {
	n := t.LineClocks() * t.FrameLines()
	if n <= 0 {
		return 0
	}
	return t.PixelClock / physic.Frequency(n)
}

func (t Timing) String() string {
	return fmt.Sprintf("%dx%d@%s h(%d/%d/%d) v(%d/%d/%d)",
		t.HRes, t.VRes, t.PixelClock,
		t.HSync.PulseWidth, t.HSync.BackPorch, t.HSync.FrontPorch,
		t.VSync.PulseWidth, t.VSync.BackPorch, t.VSync.FrontPorch)
}
