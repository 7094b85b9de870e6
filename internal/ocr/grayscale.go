package ocr

import (
	"image"

	"golang.org/x/image/draw"
)

// Grayscale converts img to an 8-bit gray image with its origin at (0,0).
// Token boxes produced from the result line up with the source pixels once
// the source's Min offset is added back.
func Grayscale(img image.Image) *image.Gray {
	b := img.Bounds()
	if g, ok := img.(*image.Gray); ok && b.Min == (image.Point{}) {
		return g
	}
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(gray, gray.Bounds(), img, b.Min, draw.Src)
	return gray
}
