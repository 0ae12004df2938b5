package rgb

import (
	"image"
	"image/color"
)

// FrameBuffer is RGB565 pixel memory scanned out by the interface. Stride is
// in pixels and may exceed the visible width.
type FrameBuffer struct {
	Pix    []uint16
	Stride int
	Rect   image.Rectangle
}

// NewFrameBuffer allocates a zeroed frame buffer for cfg.
func NewFrameBuffer(cfg Config) *FrameBuffer {
	stride := cfg.Stride()
	return &FrameBuffer{
		Pix:    make([]uint16, stride*cfg.Timing.VRes),
		Stride: stride,
		Rect:   image.Rect(0, 0, cfg.Timing.HRes, cfg.Timing.VRes),
	}
}

func (f *FrameBuffer) PixOffset(x, y int) int {
	return (y-f.Rect.Min.Y)*f.Stride + (x - f.Rect.Min.X)
}

// RGB565At returns the raw pixel, 0 outside the buffer.
func (f *FrameBuffer) RGB565At(x, y int) uint16 {
	if !(image.Point{x, y}.In(f.Rect)) {
		return 0
	}
	return f.Pix[f.PixOffset(x, y)]
}

func (f *FrameBuffer) ColorModel() color.Model { return color.RGBAModel }

func (f *FrameBuffer) Bounds() image.Rectangle { return f.Rect }

// At widens the stored 5-6-5 value to 8 bits per channel, for previews.
func (f *FrameBuffer) At(x, y int) color.Color {
	v := f.RGB565At(x, y)
	r := uint8(v>>11) & 0x1F
	g := uint8(v>>5) & 0x3F
	b := uint8(v) & 0x1F
	return color.RGBA{
		R: r<<3 | r>>2,
		G: g<<2 | g>>4,
		B: b<<3 | b>>2,
		A: 0xFF,
	}
}

// Clone returns a deep copy.
func (f *FrameBuffer) Clone() *FrameBuffer {
	return &FrameBuffer{
		Pix:    append([]uint16(nil), f.Pix...),
		Stride: f.Stride,
		Rect:   f.Rect,
	}
}
