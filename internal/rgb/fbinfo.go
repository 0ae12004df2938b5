package rgb

import "periph.io/x/conn/v3/physic"

// Layouts of struct fb_var_screeninfo and struct fb_fix_screeninfo from
// <linux/fb.h>.

type fbBitfield struct {
	Offset   uint32
	Length   uint32
	MsbRight uint32
}

type fbVarScreeninfo struct {
	Xres, Yres               uint32
	XresVirtual, YresVirtual uint32
	Xoffset, Yoffset         uint32
	BitsPerPixel             uint32
	Grayscale                uint32
	Red, Green, Blue, Transp fbBitfield
	Nonstd                   uint32
	Activate                 uint32
	Height, Width            uint32
	AccelFlags               uint32
	Pixclock                 uint32 // picoseconds
	LeftMargin, RightMargin  uint32
	UpperMargin, LowerMargin uint32
	HsyncLen, VsyncLen       uint32
	Sync, Vmode, Rotate      uint32
	Colorspace               uint32
	Reserved                 [4]uint32
}

type fbFixScreeninfo struct {
	ID           [16]byte
	SmemStart    uintptr
	SmemLen      uint32
	Type         uint32
	TypeAux      uint32
	Visual       uint32
	Xpanstep     uint16
	Ypanstep     uint16
	Ywrapstep    uint16
	LineLength   uint32
	MmioStart    uintptr
	MmioLen      uint32
	Accel        uint32
	Capabilities uint16
	Reserved     [2]uint16
}

// picoseconds converts a pixel clock to the period fbdev expects.
func picoseconds(f physic.Frequency) uint32 {
	hz := int64(f / physic.Hertz)
	if hz <= 0 {
		return 0
	}
	return uint32(1_000_000_000_000 / hz)
}

// apply writes the timing of cfg into v. Fields fbdev owns are untouched.
func (v *fbVarScreeninfo) apply(cfg Config) {
	t := cfg.Timing
	v.Xres, v.Yres = uint32(t.HRes), uint32(t.VRes)
	v.XresVirtual, v.YresVirtual = uint32(t.HRes), uint32(t.VRes)
	v.Xoffset, v.Yoffset = 0, 0
	v.BitsPerPixel = uint32(BytesPerPixel * 8)
	v.Grayscale = 0
	v.Red = fbBitfield{Offset: 11, Length: 5}
	v.Green = fbBitfield{Offset: 5, Length: 6}
	v.Blue = fbBitfield{Offset: 0, Length: 5}
	v.Transp = fbBitfield{}
	v.Activate = 0 // FB_ACTIVATE_NOW
	v.Pixclock = picoseconds(t.PixelClock)
	v.LeftMargin = uint32(t.HSync.BackPorch)
	v.RightMargin = uint32(t.HSync.FrontPorch)
	v.UpperMargin = uint32(t.VSync.BackPorch)
	v.LowerMargin = uint32(t.VSync.FrontPorch)
	v.HsyncLen = uint32(t.HSync.PulseWidth)
	v.VsyncLen = uint32(t.VSync.PulseWidth)
}
