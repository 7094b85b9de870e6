package redact

import (
	"bytes"
	"image"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/stat"
	"pgregory.net/rapid"

	"github.com/raaihank/pixel-sentinel/internal/geom"
)

func noisyImage(w, h int, seed int64) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	rng := rand.New(rand.NewSource(seed))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i] = uint8(rng.Intn(256))
		img.Pix[i+1] = uint8(rng.Intn(256))
		img.Pix[i+2] = uint8(rng.Intn(256))
		img.Pix[i+3] = 255
	}
	return img
}

func checkerboard(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			o := img.PixOffset(x, y)
			v := uint8(0)
			if (x+y)%2 == 0 {
				v = 255
			}
			img.Pix[o], img.Pix[o+1], img.Pix[o+2], img.Pix[o+3] = v, v, v, 255
		}
	}
	return img
}

func clone(img *image.RGBA) *image.RGBA {
	out := image.NewRGBA(img.Rect)
	copy(out.Pix, img.Pix)
	return out
}

// channel returns one channel of r as float64 samples
func channel(img *image.RGBA, r image.Rectangle, c int) []float64 {
	var out []float64
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			out = append(out, float64(img.Pix[img.PixOffset(x, y)+c]))
		}
	}
	return out
}

// outsideEqual reports whether a and b agree on every pixel outside r
func outsideEqual(a, b *image.RGBA, r image.Rectangle) bool {
	bounds := a.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			if image.Pt(x, y).In(r) {
				continue
			}
			o := a.PixOffset(x, y)
			if !bytes.Equal(a.Pix[o:o+4], b.Pix[o:o+4]) {
				return false
			}
		}
	}
	return true
}

func TestParseMethod(t *testing.T) {
	for _, name := range []string{"blur", "pixelate"} {
		if m, err := ParseMethod(name); err != nil || string(m) != name {
			t.Errorf("ParseMethod(%q) = %q, %v", name, m, err)
		}
	}
	if _, err := ParseMethod("sharpen"); err == nil {
		t.Error("expected error for unknown method")
	}
	if _, err := Apply(image.NewRGBA(image.Rect(0, 0, 1, 1)), geom.Box{Width: 1, Height: 1}, "smear", 3); err == nil {
		t.Error("Apply should reject unknown methods")
	}
}

func TestBlur_LeavesOutsideUntouched(t *testing.T) {
	img := noisyImage(40, 30, 1)
	orig := clone(img)
	region := geom.Box{X: 5, Y: 7, Width: 20, Height: 10}

	applied := Blur(img, region, 9)
	if applied != region {
		t.Fatalf("applied region = %v, want %v", applied, region)
	}
	if !outsideEqual(img, orig, region.Rect()) {
		t.Fatal("blur modified pixels outside the region")
	}
	if bytes.Equal(img.Pix, orig.Pix) {
		t.Fatal("blur did not change the region")
	}
}

func TestBlur_EvenKernelRoundsUp(t *testing.T) {
	a := noisyImage(16, 16, 2)
	b := clone(a)
	region := geom.Box{X: 2, Y: 2, Width: 12, Height: 12}

	Blur(a, region, 4)
	Blur(b, region, 5)
	if !bytes.Equal(a.Pix, b.Pix) {
		t.Error("kernel 4 should behave like kernel 5")
	}
}

func TestBlur_SmallKernelIsNoop(t *testing.T) {
	for _, k := range []int{-3, 0, 1} {
		img := noisyImage(8, 8, 3)
		orig := clone(img)
		Blur(img, geom.Box{Width: 8, Height: 8}, k)
		if !bytes.Equal(img.Pix, orig.Pix) {
			t.Errorf("kernel %d changed pixels", k)
		}
	}
}

func TestBlur_ReducesVariance(t *testing.T) {
	img := checkerboard(20, 20)
	region := geom.Box{Width: 20, Height: 20}

	before := stat.PopVariance(channel(img, region.Rect(), 0), nil)
	Blur(img, region, 5)
	after := stat.PopVariance(channel(img, region.Rect(), 0), nil)
	if after >= before {
		t.Fatalf("variance did not drop: %.2f -> %.2f", before, after)
	}

	// reapplying keeps shrinking toward a flat region
	Blur(img, region, 5)
	again := stat.PopVariance(channel(img, region.Rect(), 0), nil)
	if again > after {
		t.Errorf("second pass increased variance: %.2f -> %.2f", after, again)
	}
}

func TestBlur_NeverRaisesVariance(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		w := rapid.IntRange(1, 24).Draw(t, "w")
		h := rapid.IntRange(1, 24).Draw(t, "h")
		kernel := rapid.IntRange(2, 15).Draw(t, "kernel")
		lo := rapid.IntRange(0, 255).Draw(t, "lo")
		spread := rapid.IntRange(0, 255-lo).Draw(t, "spread")
		pix := rapid.SliceOfN(rapid.IntRange(lo, lo+spread), w*h, w*h).Draw(t, "pix")

		img := image.NewRGBA(image.Rect(0, 0, w, h))
		for i, v := range pix {
			b := uint8(v)
			img.Pix[i*4], img.Pix[i*4+1], img.Pix[i*4+2], img.Pix[i*4+3] = b, 255-b, b/2, 255
		}
		r := img.Bounds()

		var before [4]float64
		for c := range before {
			before[c] = stat.PopVariance(channel(img, r, c), nil)
		}
		Blur(img, geom.FromRect(r), kernel)
		for c := range before {
			if after := stat.PopVariance(channel(img, r, c), nil); after > before[c] {
				t.Fatalf("channel %d variance rose from %.4f to %.4f", c, before[c], after)
			}
		}
	})
}

func TestBlur_NearFlatRegion(t *testing.T) {
	vals := []uint8{100, 100, 101, 102, 101, 100, 101, 101, 100, 101, 101, 101}
	img := image.NewRGBA(image.Rect(0, 0, 4, 3))
	for i, v := range vals {
		img.Pix[i*4], img.Pix[i*4+1], img.Pix[i*4+2], img.Pix[i*4+3] = v, v, v, 255
	}
	r := img.Bounds()

	before := stat.PopVariance(channel(img, r, 0), nil)
	Blur(img, geom.FromRect(r), 2)
	if after := stat.PopVariance(channel(img, r, 0), nil); after > before {
		t.Fatalf("variance rose from %.4f to %.4f", before, after)
	}
	for i := 3; i < len(img.Pix); i += 4 {
		if img.Pix[i] != 255 {
			t.Fatalf("alpha changed to %d", img.Pix[i])
		}
	}
}

func TestPixelate_Blocks(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	// left column of cells 0/100, right 200/50
	vals := [4][4]uint8{
		{0, 100, 200, 50},
		{100, 0, 50, 200},
		{10, 10, 30, 30},
		{10, 11, 30, 31},
	}
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			o := img.PixOffset(x, y)
			img.Pix[o], img.Pix[o+3] = vals[y][x], 255
		}
	}

	Pixelate(img, geom.Box{Width: 4, Height: 4}, 2)

	want := [4][4]uint8{
		{50, 50, 125, 125},
		{50, 50, 125, 125},
		{10, 10, 30, 30},
		{10, 10, 30, 30},
	}
	// (10+10+10+11+2)/4 = 10, (30+30+30+31+2)/4 = 30
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			if got := img.Pix[img.PixOffset(x, y)]; got != want[y][x] {
				t.Errorf("pixel (%d,%d) = %d, want %d", x, y, got, want[y][x])
			}
		}
	}
}

func TestPixelate_OversizedBlock(t *testing.T) {
	img := noisyImage(30, 30, 4)
	region := geom.Box{X: 3, Y: 4, Width: 6, Height: 5}
	Pixelate(img, region, 50)

	first := img.Pix[img.PixOffset(3, 4) : img.PixOffset(3, 4)+4]
	r := region.Rect()
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			o := img.PixOffset(x, y)
			if !bytes.Equal(img.Pix[o:o+4], first) {
				t.Fatalf("pixel (%d,%d) differs from single block colour", x, y)
			}
		}
	}
}

func TestPixelate_Idempotent(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		w := rapid.IntRange(1, 32).Draw(t, "w")
		h := rapid.IntRange(1, 32).Draw(t, "h")
		block := rapid.IntRange(-1, 40).Draw(t, "block")
		region := geom.Box{
			X:      rapid.IntRange(-10, w+10).Draw(t, "x"),
			Y:      rapid.IntRange(-10, h+10).Draw(t, "y"),
			Width:  rapid.IntRange(0, 50).Draw(t, "rw"),
			Height: rapid.IntRange(0, 50).Draw(t, "rh"),
		}

		img := noisyImage(w, h, rapid.Int64().Draw(t, "seed"))
		Pixelate(img, region, block)
		once := clone(img)
		Pixelate(img, region, block)

		if !bytes.Equal(img.Pix, once.Pix) {
			t.Fatalf("pixelate not idempotent for region %v block %d", region, block)
		}
	})
}

// Any region, however far outside the image, is clamped and never panics.
func TestRedact_ClampsRegion(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		w := rapid.IntRange(1, 20).Draw(t, "w")
		h := rapid.IntRange(1, 20).Draw(t, "h")
		region := geom.Box{
			X:      rapid.IntRange(-100, 100).Draw(t, "x"),
			Y:      rapid.IntRange(-100, 100).Draw(t, "y"),
			Width:  rapid.IntRange(-10, 200).Draw(t, "rw"),
			Height: rapid.IntRange(-10, 200).Draw(t, "rh"),
		}
		method := rapid.SampledFrom([]Method{MethodBlur, MethodPixelate}).Draw(t, "method")
		strength := rapid.IntRange(0, 30).Draw(t, "strength")

		img := noisyImage(w, h, 7)
		orig := clone(img)

		applied, err := Apply(img, region, method, strength)
		if err != nil {
			t.Fatalf("Apply: %v", err)
		}
		if !applied.Empty() && !applied.Rect().In(img.Bounds()) {
			t.Fatalf("applied region %v escapes %v", applied, img.Bounds())
		}
		if !outsideEqual(img, orig, applied.Rect()) {
			t.Fatalf("pixels outside %v changed", applied)
		}
	})
}

func TestRedact_OffsetImage(t *testing.T) {
	img := image.NewRGBA(image.Rect(100, 100, 120, 110))
	for i := range img.Pix {
		img.Pix[i] = uint8(i)
	}
	orig := clone(img)

	applied := Pixelate(img, geom.Box{X: 95, Y: 95, Width: 10, Height: 10}, 2)
	if want := (geom.Box{X: 100, Y: 100, Width: 5, Height: 5}); applied != want {
		t.Fatalf("applied = %v, want %v", applied, want)
	}
	if !outsideEqual(img, orig, applied.Rect()) {
		t.Fatal("pixels outside clamped region changed")
	}
}
