// Package redact obscures rectangular regions of an RGBA image in place.
//
// Both operations clamp the region to the image bounds before touching any
// pixel and leave everything outside the clamped region bit-identical.
package redact

import (
	"fmt"
	"image"

	"github.com/raaihank/pixel-sentinel/internal/geom"
)

// Method selects the redaction applied to every region of one image
type Method string

const (
	MethodBlur     Method = "blur"
	MethodPixelate Method = "pixelate"
)

// ParseMethod validates a method name
func ParseMethod(s string) (Method, error) {
	switch Method(s) {
	case MethodBlur, MethodPixelate:
		return Method(s), nil
	default:
		return "", fmt.Errorf("unknown redaction method: %q", s)
	}
}

// Apply runs method over region with the given strength: the kernel size for
// blur, the block size for pixelate. It returns the region actually modified.
func Apply(img *image.RGBA, region geom.Box, method Method, strength int) (geom.Box, error) {
	switch method {
	case MethodBlur:
		return Blur(img, region, strength), nil
	case MethodPixelate:
		return Pixelate(img, region, strength), nil
	default:
		return geom.Box{}, fmt.Errorf("unknown redaction method: %q", method)
	}
}

// rowSpan returns the Pix slice for one row of r
func rowSpan(img *image.RGBA, r image.Rectangle, y int) []uint8 {
	start := img.PixOffset(r.Min.X, y)
	return img.Pix[start : start+4*r.Dx()]
}
