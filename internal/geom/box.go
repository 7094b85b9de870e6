// Package geom holds the pixel-space rectangle shared by the OCR, localization
// and redaction stages.
//
// Coordinates use the image-buffer convention: origin at the top-left corner,
// x increasing rightward and y increasing downward.
package geom

import (
	"fmt"
	"image"
)

// Box is an axis-aligned rectangle in pixel units
type Box struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// FromRect converts an image.Rectangle into a Box
func FromRect(r image.Rectangle) Box {
	r = r.Canon()
	return Box{X: r.Min.X, Y: r.Min.Y, Width: r.Dx(), Height: r.Dy()}
}

// Rect returns the half-open image.Rectangle covered by the box
func (b Box) Rect() image.Rectangle {
	return image.Rect(b.X, b.Y, b.X+b.Width, b.Y+b.Height)
}

// Empty reports whether the box covers no pixels
func (b Box) Empty() bool {
	return b.Width <= 0 || b.Height <= 0
}

// Pad grows the box by px on every side. Negative padding shrinks it.
func (b Box) Pad(px int) Box {
	return Box{
		X:      b.X - px,
		Y:      b.Y - px,
		Width:  b.Width + 2*px,
		Height: b.Height + 2*px,
	}
}

// Clamp intersects the box with bounds. The result is empty (zero value)
// when the two do not overlap.
func (b Box) Clamp(bounds image.Rectangle) Box {
	if b.Empty() {
		return Box{}
	}
	r := b.Rect().Intersect(bounds)
	if r.Empty() {
		return Box{}
	}
	return FromRect(r)
}

func (b Box) String() string {
	return fmt.Sprintf("%dx%d+%d+%d", b.Width, b.Height, b.X, b.Y)
}
