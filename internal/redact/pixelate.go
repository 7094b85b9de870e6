package redact

import (
	"image"

	"github.com/raaihank/pixel-sentinel/internal/geom"
)

// Pixelate replaces region with a mosaic of
// max(1, w/block) x max(1, h/block) cells, each filled with the rounded mean
// of the pixels it covers. A block larger than the region yields one cell.
// Applying it twice with the same block gives the same pixels.
func Pixelate(img *image.RGBA, region geom.Box, block int) geom.Box {
	region = region.Clamp(img.Bounds())
	if region.Empty() {
		return region
	}
	if block < 1 {
		block = 1
	}

	r := region.Rect()
	w, h := r.Dx(), r.Dy()
	gw := max(1, w/block)
	gh := max(1, h/block)

	// pixel x falls in column x*gw/w, the nearest-neighbour inverse of the
	// downsampled grid
	sums := make([][4]int, gw*gh)
	counts := make([]int, gw*gh)
	for y := 0; y < h; y++ {
		cy := y * gh / h
		row := rowSpan(img, r, r.Min.Y+y)
		for x := 0; x < w; x++ {
			cell := cy*gw + x*gw/w
			counts[cell]++
			for c := 0; c < 4; c++ {
				sums[cell][c] += int(row[x*4+c])
			}
		}
	}

	means := make([][4]uint8, len(sums))
	for i, s := range sums {
		n := counts[i]
		for c := 0; c < 4; c++ {
			means[i][c] = uint8((s[c] + n/2) / n)
		}
	}

	for y := 0; y < h; y++ {
		cy := y * gh / h
		row := rowSpan(img, r, r.Min.Y+y)
		for x := 0; x < w; x++ {
			m := means[cy*gw+x*gw/w]
			copy(row[x*4:x*4+4], m[:])
		}
	}

	return region
}
