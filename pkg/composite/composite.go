// Package composite lays captured stills onto the photo strip.
//
// The strip is a fixed [Width]×[Height] canvas with one slot per still.
// Stills are assigned to slots by position: the first still goes to the
// first slot, and so on. The template overlay is drawn last, over the
// whole canvas, so its transparent windows reveal the stills beneath.
//
// # Usage
//
//	stills, err := composite.Sanitize(payload)
//	if errors.Is(err, composite.ErrNoPhotos) {
//	    // nothing to render: send the visitor back to capture
//	}
//	img := composite.Compose(composite.DefaultTemplate(), decoded)
//	data, err := composite.Encode(img)
package composite

import (
	"bytes"
	"encoding/json"
	"errors"
	"image"
	"image/png"

	"golang.org/x/image/draw"
)

// Canvas size of the strip.
const (
	Width  = 500
	Height = 1500
)

// Slots are the strip positions of the stills, top to bottom.
var Slots = [...]image.Rectangle{
	image.Rect(36, 110, 36+429, 110+301),
	image.Rect(36, 428, 36+429, 428+301),
	image.Rect(36, 750, 36+429, 750+301),
	image.Rect(36, 1065, 36+429, 1065+301),
}

// ErrNoPhotos is returned when a handoff payload holds nothing to render.
var ErrNoPhotos = errors.New("no photos to render")

// Sanitize decodes a handoff payload: a JSON array of still data URLs.
// Entries that are not non-empty strings are dropped and at most
// len(Slots) are kept. A missing or malformed payload, or one with no
// usable entries, is ErrNoPhotos.
func Sanitize(payload []byte) ([]string, error) {
	if len(bytes.TrimSpace(payload)) == 0 {
		return nil, ErrNoPhotos
	}

	var entries []any
	if err := json.Unmarshal(payload, &entries); err != nil || len(entries) == 0 {
		return nil, ErrNoPhotos
	}

	stills := make([]string, 0, len(Slots))
	for _, e := range entries {
		s, ok := e.(string)
		if !ok || s == "" {
			continue
		}
		stills = append(stills, s)
		if len(stills) == len(Slots) {
			break
		}
	}
	if len(stills) == 0 {
		return nil, ErrNoPhotos
	}
	return stills, nil
}

// Compose draws stills into their slots on a cleared canvas and then the
// template over the whole canvas. Stills beyond the last slot are ignored.
// A nil template leaves the stills uncovered.
func Compose(template image.Image, stills []image.Image) *image.RGBA {
	canvas := image.NewRGBA(image.Rect(0, 0, Width, Height))

	for i, still := range stills {
		if i >= len(Slots) {
			break
		}
		if still == nil {
			continue
		}
		draw.CatmullRom.Scale(canvas, Slots[i], still, still.Bounds(), draw.Over, nil)
	}

	if template != nil {
		draw.CatmullRom.Scale(canvas, canvas.Bounds(), template, template.Bounds(), draw.Over, nil)
	}
	return canvas
}

// Encode returns img as PNG bytes.
func Encode(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
