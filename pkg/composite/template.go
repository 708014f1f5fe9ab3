package composite

import (
	"image"
	"image/color"
	"sync"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Built-in frame colors.
var (
	frameColor  = color.RGBA{R: 0x1b, G: 0x0b, B: 0x3d, A: 0xff}
	borderColor = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
	inkColor    = color.RGBA{R: 0xf4, G: 0xee, B: 0xff, A: 0xff}
)

const (
	borderWidth = 4
	titleText   = "PHOTOBOOTH"
	footerText  = "smile, you're on the strip"
)

var (
	defaultTemplate     *image.RGBA
	defaultTemplatePNG  []byte
	defaultTemplateOnce sync.Once
)

// DefaultTemplate returns the built-in frame: a solid strip with a
// transparent window over each slot and a title above the first.
func DefaultTemplate() image.Image {
	defaultTemplateOnce.Do(buildDefaultTemplate)
	return defaultTemplate
}

// DefaultTemplatePNG returns the built-in frame encoded as PNG.
func DefaultTemplatePNG() []byte {
	defaultTemplateOnce.Do(buildDefaultTemplate)
	return defaultTemplatePNG
}

func buildDefaultTemplate() {
	img := image.NewRGBA(image.Rect(0, 0, Width, Height))
	draw.Draw(img, img.Bounds(), image.NewUniform(frameColor), image.Point{}, draw.Src)

	for _, slot := range Slots {
		draw.Draw(img, slot.Inset(-borderWidth), image.NewUniform(borderColor), image.Point{}, draw.Src)
		draw.Draw(img, slot, image.Transparent, image.Point{}, draw.Src)
	}

	drawCaption(img, titleText, image.Rect(0, 20, Width, Slots[0].Min.Y-20), 5)
	last := Slots[len(Slots)-1]
	drawCaption(img, footerText, image.Rect(0, last.Max.Y+30, Width, Height-30), 2)

	data, err := Encode(img)
	if err != nil {
		panic("composite: encode default template: " + err.Error())
	}
	defaultTemplate = img
	defaultTemplatePNG = data
}

// drawCaption renders text in the fixed 7x13 face, scales it up by factor
// and centers it in box.
func drawCaption(dst draw.Image, text string, box image.Rectangle, factor int) {
	face := basicfont.Face7x13
	d := &font.Drawer{Face: face}
	w := d.MeasureString(text).Ceil()
	h := face.Height

	glyphs := image.NewRGBA(image.Rect(0, 0, w, h))
	d.Dst = glyphs
	d.Src = image.NewUniform(inkColor)
	d.Dot = fixed.P(0, face.Ascent)
	d.DrawString(text)

	sw, sh := w*factor, h*factor
	for sw > box.Dx() && factor > 1 {
		factor--
		sw, sh = w*factor, h*factor
	}
	x := box.Min.X + (box.Dx()-sw)/2
	y := box.Min.Y + (box.Dy()-sh)/2
	draw.NearestNeighbor.Scale(dst, image.Rect(x, y, x+sw, y+sh), glyphs, glyphs.Bounds(), draw.Over, nil)
}
