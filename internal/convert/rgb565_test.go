package convert

import (
	"errors"
	"image"
	"image/color"
	"testing"
)

func TestRGB565(t *testing.T) {
	tests := []struct {
		c    color.Color
		want uint16
	}{
		{color.NRGBA{0xFF, 0, 0, 0xFF}, 0xF800},
		{color.NRGBA{0, 0xFF, 0, 0xFF}, 0x07E0},
		{color.NRGBA{0, 0, 0xFF, 0xFF}, 0x001F},
		{color.White, 0xFFFF},
		{color.Black, 0},
		{color.NRGBA{0xFF, 0xFF, 0xFF, 0x10}, 0},
		{color.NRGBA{0x08, 0x04, 0x08, 0xFF}, 0x0821},
	}
	for _, tt := range tests {
		if got := RGB565(tt.c); got != tt.want {
			t.Errorf("RGB565(%v) = %#04x, want %#04x", tt.c, got, tt.want)
		}
	}
}

func TestToRGB565CenterCrop(t *testing.T) {
	// 6x4 image, 4x2 target: crop starts at (1,1).
	img := image.NewNRGBA(image.Rect(0, 0, 6, 4))
	img.Set(1, 1, color.NRGBA{0xFF, 0, 0, 0xFF})
	img.Set(4, 2, color.NRGBA{0, 0, 0xFF, 0xFF})
	img.Set(0, 0, color.White) // cropped away

	got, err := ToRGB565(img, 4, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 8 {
		t.Fatalf("len = %d", len(got))
	}
	if got[0] != 0xF800 {
		t.Errorf("top-left = %#04x", got[0])
	}
	if got[1*4+3] != 0x001F {
		t.Errorf("bottom-right = %#04x", got[7])
	}
	for i, p := range got {
		if i != 0 && i != 7 && p != 0 {
			t.Errorf("pixel %d = %#04x", i, p)
		}
	}
}

func TestToRGB565Types(t *testing.T) {
	want := uint16(0x07E0)
	imgs := map[string]image.Image{
		"nrgba": image.NewNRGBA(image.Rect(0, 0, 2, 2)),
		"rgba":  image.NewRGBA(image.Rect(0, 0, 2, 2)),
		"gray":  image.NewGray(image.Rect(0, 0, 2, 2)),
	}
	for name, img := range imgs {
		if s, ok := img.(interface{ Set(int, int, color.Color) }); ok {
			for y := 0; y < 2; y++ {
				for x := 0; x < 2; x++ {
					s.Set(x, y, color.NRGBA{0, 0xFF, 0, 0xFF})
				}
			}
		}
		got, err := ToRGB565(img, 2, 2)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		exp := want
		if name == "gray" {
			// Gray keeps luma only: 0.587*255 = 150.
			exp = RGB565(color.Gray{150})
		}
		if got[3] != exp {
			t.Errorf("%s: pixel = %#04x, want %#04x", name, got[3], exp)
		}
	}
}

func TestToRGB565Errors(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	if _, err := ToRGB565(img, 5, 4); !errors.Is(err, ErrSize) {
		t.Error("narrow image accepted")
	}
	if _, err := ToRGB565(img, 4, 0); err == nil {
		t.Error("zero target accepted")
	}
}
