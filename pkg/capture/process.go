package capture

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"io"
	"math"

	"github.com/disintegration/imaging"

	"github.com/sicodev/photobooth/pkg/dataurl"
)

// Still dimensions. Every captured still is exactly this size, matching
// one slot of the composite strip.
const (
	StillWidth  = 429
	StillHeight = 301
)

// MaxFramePixels bounds the declared size of a frame before it is decoded.
const MaxFramePixels = 40_000_000

// ErrFrameTooLarge is returned for frames whose header declares more than
// MaxFramePixels pixels.
var ErrFrameTooLarge = errors.New("frame dimensions too large")

// CropRect returns the largest centered rectangle of a w×h frame with the
// still aspect ratio. Wider frames lose equal strips left and right,
// taller frames lose equal strips top and bottom.
func CropRect(w, h int) image.Rectangle {
	if w <= 0 || h <= 0 {
		return image.Rectangle{}
	}
	target := float64(StillWidth) / float64(StillHeight)
	source := float64(w) / float64(h)

	switch {
	case source > target:
		cw := int(math.Round(float64(h) * target))
		x := (w - cw) / 2
		return image.Rect(x, 0, x+cw, h)
	case source < target:
		ch := int(math.Round(float64(w) / target))
		y := (h - ch) / 2
		return image.Rect(0, y, w, y+ch)
	default:
		return image.Rect(0, 0, w, h)
	}
}

// Process applies the capture policy to a frame: crop, mirror, scale.
func Process(frame image.Image) (*image.NRGBA, error) {
	if frame == nil {
		return nil, fmt.Errorf("no frame")
	}
	b := frame.Bounds()
	if b.Empty() {
		return nil, fmt.Errorf("empty frame")
	}

	crop := CropRect(b.Dx(), b.Dy()).Add(b.Min)
	img := imaging.Crop(frame, crop)
	img = imaging.FlipH(img)
	return imaging.Resize(img, StillWidth, StillHeight, imaging.Lanczos), nil
}

// Encode returns img as a PNG data URL.
func Encode(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return "", fmt.Errorf("encode still: %w", err)
	}
	return dataurl.EncodePNG(buf.Bytes()), nil
}

// ProcessFrame decodes an uploaded PNG or JPEG frame and returns the
// processed still as a data URL. The header is checked against
// MaxFramePixels before any pixel data is decoded.
func ProcessFrame(r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read frame: %w", err)
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("decode frame: %w", err)
	}
	if int64(cfg.Width)*int64(cfg.Height) > MaxFramePixels {
		return "", fmt.Errorf("%w: %dx%d", ErrFrameTooLarge, cfg.Width, cfg.Height)
	}

	frame, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return "", fmt.Errorf("decode frame: %w", err)
	}
	img, err := Process(frame)
	if err != nil {
		return "", err
	}
	return Encode(img)
}
