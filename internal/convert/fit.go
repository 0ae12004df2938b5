package convert

import (
	"fmt"
	"image"

	"golang.org/x/image/draw"
)

// Fit scales img, keeping its aspect ratio, so that it covers w x h, and
// crops the overflow evenly from both sides. The result is exactly w x h,
// whatever the shape of img. An image that covers the target with one axis
// exact is returned as is; ToRGB565 does its center crop.
func Fit(img image.Image, w, h int) (image.Image, error) {
	b := img.Bounds()
	if b.Empty() {
		return nil, fmt.Errorf("%w: empty image", ErrSize)
	}
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("%w: invalid target %dx%d", ErrSize, w, h)
	}
	if (b.Dx() == w && b.Dy() >= h) || (b.Dy() == h && b.Dx() >= w) {
		return img, nil
	}

	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, coverCrop(b, w, h), draw.Src, nil)
	return dst, nil
}

// coverCrop is the centered part of b with the aspect ratio of w x h.
func coverCrop(b image.Rectangle, w, h int) image.Rectangle {
	bw, bh := int64(b.Dx()), int64(b.Dy())
	cw, ch := bw, bh
	if bw*int64(h) > bh*int64(w) {
		cw = max(bh*int64(w)/int64(h), 1)
	} else {
		ch = max(bw*int64(h)/int64(w), 1)
	}
	x0 := b.Min.X + int((bw-cw)/2)
	y0 := b.Min.Y + int((bh-ch)/2)
	return image.Rect(x0, y0, x0+int(cw), y0+int(ch))
}
