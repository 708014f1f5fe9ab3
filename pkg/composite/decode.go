package composite

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"

	_ "golang.org/x/image/webp"

	"github.com/sicodev/photobooth/pkg/dataurl"
)

// MaxPixels bounds the declared size of any decoded still or template.
const MaxPixels = 40_000_000

// ErrTooLarge is returned for images whose header declares more than
// MaxPixels pixels.
var ErrTooLarge = errors.New("image dimensions too large")

// DecodeStill decodes a still data URL (PNG, JPEG or WebP).
func DecodeStill(s string) (image.Image, error) {
	data, err := dataurl.DecodeImage(s)
	if err != nil {
		return nil, err
	}
	return DecodeBytes(data)
}

// DecodeBytes decodes raw image bytes, rejecting oversized headers first.
func DecodeBytes(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty image")
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	if int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return nil, fmt.Errorf("%w: %dx%d", ErrTooLarge, cfg.Width, cfg.Height)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

// LoadTemplate reads a template overlay from path. An empty path yields
// the built-in frame.
func LoadTemplate(path string) (image.Image, error) {
	if path == "" {
		return DefaultTemplate(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read template: %w", err)
	}
	return DecodeBytes(data)
}
