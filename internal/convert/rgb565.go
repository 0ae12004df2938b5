package convert

import (
	"errors"
	"fmt"
	"image"
	"image/color"
)

// ErrSize is returned when an image cannot cover the target.
var ErrSize = errors.New("convert: bad image size")

// RGB565 packs one color into the panel's 16-bit format.
func RGB565(c color.Color) uint16 {
	n := color.NRGBAModel.Convert(c).(color.NRGBA)
	// Transparent pixels are not shown; treat them as black.
	if n.A < 128 {
		return 0
	}
	return pack(n.R, n.G, n.B)
}

func pack(r, g, b uint8) uint16 {
	return uint16(r&0xF8)<<8 | uint16(g&0xFC)<<3 | uint16(b)>>3
}

// ToRGB565 converts img into w*h packed pixels, y-major.
//
//   - img must be at least w x h.
//   - A larger image is center-cropped on both axes.
//   - alpha < 128 is black, alpha is otherwise ignored.
func ToRGB565(img image.Image, w, h int) ([]uint16, error) {
	b := img.Bounds()
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("%w: invalid target %dx%d", ErrSize, w, h)
	}
	if b.Dx() < w || b.Dy() < h {
		return nil, fmt.Errorf("%w: image %dx%d smaller than %dx%d", ErrSize, b.Dx(), b.Dy(), w, h)
	}
	startX := b.Min.X + (b.Dx()-w)/2
	startY := b.Min.Y + (b.Dy()-h)/2

	out := make([]uint16, w*h)

	// Direct Pix access for the common decoded types avoids At().
	switch src := img.(type) {
	case *image.NRGBA:
		for py := 0; py < h; py++ {
			row := src.Pix[src.PixOffset(startX, startY+py):]
			for px := 0; px < w; px++ {
				p := row[px*4 : px*4+4]
				if p[3] < 128 {
					continue
				}
				out[py*w+px] = pack(p[0], p[1], p[2])
			}
		}
	case *image.RGBA:
		// Premultiplied; opaque pixels are what PNG decoding yields here.
		for py := 0; py < h; py++ {
			row := src.Pix[src.PixOffset(startX, startY+py):]
			for px := 0; px < w; px++ {
				p := row[px*4 : px*4+4]
				out[py*w+px] = RGB565(color.RGBA{p[0], p[1], p[2], p[3]})
			}
		}
	default:
		for py := 0; py < h; py++ {
			for px := 0; px < w; px++ {
				out[py*w+px] = RGB565(img.At(startX+px, startY+py))
			}
		}
	}
	return out, nil
}
