package imageio

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"testing"
)

func TestDecodeRoundTrip(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 3, 2))
	src.Set(1, 1, color.RGBA{R: 10, G: 20, B: 30, A: 255})

	data, err := PNGBytes(src)
	if err != nil {
		t.Fatalf("PNGBytes: %v", err)
	}

	img, format, err := Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if format != "png" {
		t.Errorf("format = %s, want png", format)
	}
	if got := Clone(img).RGBAAt(1, 1); got != (color.RGBA{R: 10, G: 20, B: 30, A: 255}) {
		t.Errorf("pixel = %v", got)
	}
}

func TestDecodeJPEG(t *testing.T) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, image.NewGray(image.Rect(0, 0, 8, 8)), nil); err != nil {
		t.Fatalf("jpeg.Encode: %v", err)
	}
	if _, format, err := Decode(&buf); err != nil || format != "jpeg" {
		t.Fatalf("Decode = %s, %v", format, err)
	}
}

func TestDecodeGarbage(t *testing.T) {
	inputs := map[string][]byte{
		"empty":     nil,
		"text":      []byte("definitely not an image"),
		"truncated": {0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'},
	}
	for name, data := range inputs {
		t.Run(name, func(t *testing.T) {
			_, _, err := DecodeBytes(data)
			if !errors.Is(err, ErrImageDecode) {
				t.Fatalf("expected ErrImageDecode, got %v", err)
			}
		})
	}
}

func TestCloneIsIndependent(t *testing.T) {
	src := image.NewRGBA(image.Rect(2, 3, 6, 7))
	src.Set(2, 3, color.White)

	c := Clone(src)
	if c.Bounds() != src.Bounds() {
		t.Fatalf("bounds = %v, want %v", c.Bounds(), src.Bounds())
	}
	c.Set(2, 3, color.Black)
	if src.RGBAAt(2, 3) != (color.RGBA{255, 255, 255, 255}) {
		t.Error("mutating the clone changed the source")
	}
}

func TestCloneNative(t *testing.T) {
	b := image.Rect(1, 1, 5, 4)
	paletted := image.NewPaletted(b, color.Palette{color.Black, color.RGBA{R: 200, G: 10, B: 10, A: 255}})
	paletted.SetColorIndex(2, 2, 1)
	nrgba := image.NewNRGBA(b)
	nrgba.SetNRGBA(2, 2, color.NRGBA{R: 250, G: 3, B: 77, A: 77})
	gray16 := image.NewGray16(b)
	gray16.SetGray16(2, 2, color.Gray16{Y: 0x1234})

	tests := []struct {
		name string
		src  image.Image
		want string
	}{
		{"nrgba", nrgba, "*image.NRGBA"},
		{"gray16", gray16, "*image.Gray16"},
		{"paletted", paletted, "*image.RGBA64"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := CloneNative(tt.src)
			if got := fmt.Sprintf("%T", c); got != tt.want {
				t.Fatalf("type = %s, want %s", got, tt.want)
			}
			if c.Bounds() != b {
				t.Fatalf("bounds = %v, want %v", c.Bounds(), b)
			}
			for y := b.Min.Y; y < b.Max.Y; y++ {
				for x := b.Min.X; x < b.Max.X; x++ {
					want := color.RGBA64Model.Convert(tt.src.At(x, y))
					if got := color.RGBA64Model.Convert(c.At(x, y)); got != want {
						t.Fatalf("pixel (%d,%d) = %v, want %v", x, y, got, want)
					}
				}
			}

			c.Set(2, 2, color.White)
			if color.RGBA64Model.Convert(tt.src.At(2, 2)) == color.RGBA64Model.Convert(color.White) {
				t.Error("mutating the clone changed the source")
			}
		})
	}
}

func TestRegion(t *testing.T) {
	src := image.NewGray(image.Rect(0, 0, 6, 6))
	src.SetGray(3, 4, color.Gray{Y: 99})

	r := image.Rect(2, 3, 5, 6)
	got := Region(src, r)
	if got.Bounds() != r {
		t.Fatalf("bounds = %v, want %v", got.Bounds(), r)
	}
	if px := got.RGBAAt(3, 4); px != (color.RGBA{99, 99, 99, 255}) {
		t.Errorf("pixel = %v", px)
	}
}
