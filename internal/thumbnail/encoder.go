// Package thumbnail converts arbitrary-format images into bounded-size JPEG
// payloads suitable for a vision API call.
package thumbnail

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"os"

	_ "image/gif"
	_ "image/png"

	"github.com/disintegration/imaging"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const (
	// MaxDimension bounds both sides of the encoded thumbnail.
	MaxDimension = 800
	// Quality is the JPEG quality used for the payload.
	Quality = 85
	// MediaType is the MIME type of every payload the encoder produces.
	MediaType = "image/jpeg"
)

// Encoder produces base64 JPEG thumbnails. The zero value is usable.
type Encoder struct{}

func New() *Encoder { return &Encoder{} }

// EncodeFile reads the image at path and returns its thumbnail as a base64
// string. Failure (unreadable, corrupt, unsupported format) is image-local:
// the caller substitutes an error result for that image and carries on.
func (e *Encoder) EncodeFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return "", fmt.Errorf("decode image %s: %w", path, err)
	}
	return Encode(img)
}

// Encode shrinks img to fit MaxDimension, flattens any alpha channel onto a
// white background (JPEG has no transparency), and returns base64 JPEG bytes
// at Quality.
func Encode(img image.Image) (string, error) {
	thumb := imaging.Fit(img, MaxDimension, MaxDimension, imaging.Lanczos)
	flat := flatten(thumb)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, flat, &jpeg.Options{Quality: Quality}); err != nil {
		return "", fmt.Errorf("encode jpeg: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// flatten composites img over an opaque white canvas.
func flatten(img image.Image) *image.RGBA {
	bounds := img.Bounds()
	flat := image.NewRGBA(bounds)
	draw.Draw(flat, bounds, image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(flat, bounds, img, bounds.Min, draw.Over)
	return flat
}
