package redact

import (
	"image"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/raaihank/pixel-sentinel/internal/geom"
)

// Blur applies a separable Gaussian blur of size kernel inside region.
// An even kernel is widened to the next odd size; a kernel below 2 is a no-op.
// Samples past the region edge are mirrored back into it, so pixels outside
// the region never feed the result. No channel of the region ends up with more
// variance than it started with, except color clamped under a restored alpha.
func Blur(img *image.RGBA, region geom.Box, kernel int) geom.Box {
	region = region.Clamp(img.Bounds())
	if region.Empty() || kernel < 2 {
		return region
	}
	if kernel%2 == 0 {
		kernel++
	}

	weights := gaussianKernel(kernel)
	r := region.Rect()
	w, h := r.Dx(), r.Dy()

	src := make([]float64, w*h*4)
	for y := 0; y < h; y++ {
		row := rowSpan(img, r, r.Min.Y+y)
		for i, v := range row {
			src[y*w*4+i] = float64(v)
		}
	}

	tmp := make([]float64, len(src))
	half := kernel / 2

	// horizontal
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var acc [4]float64
			for k, wt := range weights {
				sx := mirror(x+k-half, w)
				base := (y*w + sx) * 4
				for c := 0; c < 4; c++ {
					acc[c] += wt * src[base+c]
				}
			}
			copy(tmp[(y*w+x)*4:], acc[:])
		}
	}

	// vertical
	out := make([]uint8, len(src))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var acc [4]float64
			for k, wt := range weights {
				sy := mirror(y+k-half, h)
				base := (sy*w + x) * 4
				for c := 0; c < 4; c++ {
					acc[c] += wt * tmp[base+c]
				}
			}
			for c := 0; c < 4; c++ {
				out[(y*w+x)*4+c] = toByte(acc[c])
			}
		}
	}

	if restored := keepVariance(src, out); restored[3] {
		// premultiplied color may not exceed the original alpha
		for i := 0; i < len(out); i += 4 {
			for c := 0; c < 3; c++ {
				out[i+c] = min(out[i+c], out[i+3])
			}
		}
	}

	for y := 0; y < h; y++ {
		copy(rowSpan(img, r, r.Min.Y+y), out[y*w*4:(y+1)*w*4])
	}

	return region
}

// keepVariance restores the original samples of every channel whose
// variance the rounded blur raised. The Gaussian itself never raises it, but
// rounding a near-flat channel to whole values can.
func keepVariance(src []float64, out []uint8) (restored [4]bool) {
	n := len(out) / 4
	before := make([]float64, n)
	after := make([]float64, n)
	for c := 0; c < 4; c++ {
		for i := 0; i < n; i++ {
			before[i] = src[i*4+c]
			after[i] = float64(out[i*4+c])
		}
		if stat.PopVariance(after, nil) <= stat.PopVariance(before, nil) {
			continue
		}
		for i := 0; i < n; i++ {
			out[i*4+c] = uint8(src[i*4+c])
		}
		restored[c] = true
	}
	return restored
}

// gaussianKernel returns normalized weights for an odd size, with sigma
// derived from the size the way OpenCV does when sigma is zero
func gaussianKernel(size int) []float64 {
	sigma := 0.3*(float64(size-1)*0.5-1) + 0.8
	half := size / 2

	weights := make([]float64, size)
	var sum float64
	for i := range weights {
		d := float64(i - half)
		weights[i] = math.Exp(-(d * d) / (2 * sigma * sigma))
		sum += weights[i]
	}
	for i := range weights {
		weights[i] /= sum
	}
	return weights
}

// mirror maps i into [0,n) by mirroring with the edge sample repeated:
// ... c b a | a b c d | d c b ...
func mirror(i, n int) int {
	period := 2 * n
	m := i % period
	if m < 0 {
		m += period
	}
	if m >= n {
		m = period - 1 - m
	}
	return m
}

func toByte(v float64) uint8 {
	v = math.Round(v)
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
