// Package imageio decodes uploaded images, makes working copies of them and
// encodes results as PNG. PNG output carries no EXIF or text chunks, so
// exported images never leak capture metadata.
package imageio

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"
	"slices"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ErrImageDecode means the input could not be decoded into an image.
// It is fatal: callers must not continue with the buffer.
var ErrImageDecode = errors.New("image decode failed")

// MaxPixels bounds the decoded size of a single image
const MaxPixels = 64 << 20

// Decode reads an image and returns it with its format name
func Decode(r io.Reader) (image.Image, string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrImageDecode, err)
	}
	return DecodeBytes(data)
}

// DecodeBytes decodes an in-memory image after checking its dimensions
func DecodeBytes(data []byte) (image.Image, string, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrImageDecode, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, format, fmt.Errorf("%w: empty image", ErrImageDecode)
	}
	if cfg.Width*cfg.Height > MaxPixels {
		return nil, format, fmt.Errorf("%w: %dx%d exceeds pixel limit", ErrImageDecode, cfg.Width, cfg.Height)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, format, fmt.Errorf("%w: %v", ErrImageDecode, err)
	}
	return img, format, nil
}

// Clone copies img into a new RGBA buffer with the same bounds. The copy is
// 8 bits per channel regardless of the source depth.
func Clone(img image.Image) *image.RGBA {
	return Region(img, img.Bounds())
}

// Region copies r of img into an 8-bit RGBA buffer whose bounds are r
func Region(img image.Image, r image.Rectangle) *image.RGBA {
	out := image.NewRGBA(r)
	draw.Draw(out, r, img, r.Min, draw.Src)
	return out
}

// CloneNative copies img without changing its pixel format, so every pixel
// of the copy reads back exactly as in the source. Formats that cannot be
// written in place (YCbCr, Paletted, CMYK and friends) become RGBA64, which
// holds any color's 16-bit premultiplied value unchanged.
func CloneNative(img image.Image) draw.Image {
	switch src := img.(type) {
	case *image.RGBA:
		return &image.RGBA{Pix: slices.Clone(src.Pix), Stride: src.Stride, Rect: src.Rect}
	case *image.NRGBA:
		return &image.NRGBA{Pix: slices.Clone(src.Pix), Stride: src.Stride, Rect: src.Rect}
	case *image.RGBA64:
		return &image.RGBA64{Pix: slices.Clone(src.Pix), Stride: src.Stride, Rect: src.Rect}
	case *image.NRGBA64:
		return &image.NRGBA64{Pix: slices.Clone(src.Pix), Stride: src.Stride, Rect: src.Rect}
	case *image.Gray:
		return &image.Gray{Pix: slices.Clone(src.Pix), Stride: src.Stride, Rect: src.Rect}
	case *image.Gray16:
		return &image.Gray16{Pix: slices.Clone(src.Pix), Stride: src.Stride, Rect: src.Rect}
	default:
		b := img.Bounds()
		out := image.NewRGBA64(b)
		draw.Draw(out, b, img, b.Min, draw.Src)
		return out
	}
}

// EncodePNG writes img as PNG
func EncodePNG(w io.Writer, img image.Image) error {
	enc := png.Encoder{CompressionLevel: png.DefaultCompression}
	if err := enc.Encode(w, img); err != nil {
		return fmt.Errorf("failed to encode png: %w", err)
	}
	return nil
}

// PNGBytes encodes img as PNG into memory
func PNGBytes(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := EncodePNG(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
