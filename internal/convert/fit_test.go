package convert

import (
	"errors"
	"image"
	"image/color"
	"testing"
)

func TestFit(t *testing.T) {
	tests := []struct {
		name     string
		src      image.Rectangle
		w, h     int
		wantW    int
		wantH    int
		wantSame bool
	}{
		{"exact", image.Rect(0, 0, 480, 480), 480, 480, 480, 480, true},
		{"already covers", image.Rect(0, 0, 480, 640), 480, 480, 480, 640, true},
		{"small square", image.Rect(0, 0, 120, 120), 480, 480, 480, 480, false},
		{"wide", image.Rect(0, 0, 1920, 1080), 480, 480, 480, 480, false},
		{"tall", image.Rect(0, 0, 100, 300), 480, 480, 480, 480, false},
		{"one pixel wide", image.Rect(0, 0, 1, 20000), 480, 480, 480, 480, false},
		{"one pixel high", image.Rect(0, 0, 20000, 1), 480, 480, 480, 480, false},
		{"offset origin", image.Rect(-50, 30, 150, 130), 40, 40, 40, 40, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := image.NewNRGBA(tt.src)
			got, err := Fit(src, tt.w, tt.h)
			if err != nil {
				t.Fatal(err)
			}
			if b := got.Bounds(); b.Dx() != tt.wantW || b.Dy() != tt.wantH {
				t.Errorf("size = %dx%d, want %dx%d", b.Dx(), b.Dy(), tt.wantW, tt.wantH)
			}
			if same := got == image.Image(src); same != tt.wantSame {
				t.Errorf("returned source = %v", same)
			}
			if _, err := ToRGB565(got, tt.w, tt.h); err != nil {
				t.Errorf("fitted image does not convert: %v", err)
			}
		})
	}
}

func TestFitKeepsColor(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 10, 10))
	for i := 0; i < len(src.Pix); i += 4 {
		copy(src.Pix[i:], []byte{0xFF, 0, 0, 0xFF})
	}
	got, err := Fit(src, 40, 40)
	if err != nil {
		t.Fatal(err)
	}
	if c := RGB565(got.At(20, 20)); c != RGB565(color.NRGBA{0xFF, 0, 0, 0xFF}) {
		t.Errorf("center = %#04x", c)
	}
}

func TestFitCropsCenter(t *testing.T) {
	// Three vertical bands; only the middle one survives a square crop.
	src := image.NewNRGBA(image.Rect(0, 0, 300, 100))
	bands := []color.NRGBA{{0xFF, 0, 0, 0xFF}, {0, 0xFF, 0, 0xFF}, {0, 0, 0xFF, 0xFF}}
	for y := 0; y < 100; y++ {
		for x := 0; x < 300; x++ {
			src.SetNRGBA(x, y, bands[x/100])
		}
	}
	got, err := Fit(src, 50, 50)
	if err != nil {
		t.Fatal(err)
	}
	green := RGB565(bands[1])
	for _, pt := range []image.Point{{5, 5}, {25, 25}, {44, 44}} {
		if c := RGB565(got.At(pt.X, pt.Y)); c != green {
			t.Errorf("At(%v) = %#04x, want %#04x", pt, c, green)
		}
	}
}

func TestCoverCrop(t *testing.T) {
	tests := []struct {
		b    image.Rectangle
		w, h int
		want image.Rectangle
	}{
		{image.Rect(0, 0, 300, 100), 50, 50, image.Rect(100, 0, 200, 100)},
		{image.Rect(0, 0, 100, 300), 50, 50, image.Rect(0, 100, 100, 200)},
		{image.Rect(0, 0, 1, 20000), 480, 480, image.Rect(0, 9999, 1, 10000)},
		{image.Rect(10, 10, 20, 20), 480, 480, image.Rect(10, 10, 20, 20)},
	}
	for _, tt := range tests {
		if got := coverCrop(tt.b, tt.w, tt.h); got != tt.want {
			t.Errorf("coverCrop(%v, %d, %d) = %v, want %v", tt.b, tt.w, tt.h, got, tt.want)
		}
	}
}

func TestFitErrors(t *testing.T) {
	if _, err := Fit(image.NewNRGBA(image.Rectangle{}), 4, 4); !errors.Is(err, ErrSize) {
		t.Errorf("empty image: %v", err)
	}
	if _, err := Fit(image.NewNRGBA(image.Rect(0, 0, 2, 2)), 0, 4); !errors.Is(err, ErrSize) {
		t.Errorf("zero target: %v", err)
	}
}
