package raster

import (
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Branding overlay geometry. The mark is anchored to the bottom-left of
// the cover and sized as a fraction of the cover height so it scales with
// any print dimension.
const (
	brandHeightFraction = 0.06
	brandMarginFraction = 0.03
	brandWordmark       = "fable"
)

var (
	brandInk    = color.NRGBA{R: 38, G: 34, B: 30, A: 255}
	brandPlate  = color.NRGBA{R: 255, G: 250, B: 240, A: 235}
	brandAccent = color.NRGBA{R: 226, G: 122, B: 62, A: 255}
)

// ApplyBranding composites the mascot glyph and wordmark onto the
// bottom-left corner of a cover illustration.
func ApplyBranding(data []byte) ([]byte, error) {
	img, err := Decode(data)
	if err != nil {
		return nil, err
	}

	h := img.Bounds().Dy()
	markH := int(float64(h) * brandHeightFraction)
	margin := int(float64(h) * brandMarginFraction)
	if markH < 16 {
		markH = 16
	}

	mark := renderBrandMark(markH)
	pos := image.Pt(
		img.Bounds().Min.X+margin,
		img.Bounds().Max.Y-margin-mark.Bounds().Dy(),
	)
	out := imaging.Overlay(img, mark, pos, 1.0)
	return encodePNG(out)
}

// renderBrandMark draws the mascot glyph plus wordmark at the given pixel
// height. The mark is drawn small with the bitmap face and upscaled with
// Lanczos so it stays crisp at print resolution.
func renderBrandMark(height int) image.Image {
	face := basicfont.Face7x13
	textW := font.MeasureString(face, brandWordmark).Ceil()

	glyphSize := face.Height + 4
	pad := 4
	w := glyphSize + pad + textW + 2*pad
	h := glyphSize + 2*pad

	img := image.NewNRGBA(image.Rect(0, 0, w, h))

	// Backing plate so the mark reads on busy illustrations.
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, brandPlate)
		}
	}

	drawMascot(img, image.Rect(pad, pad, pad+glyphSize, pad+glyphSize))

	d := font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(brandInk),
		Face: face,
		Dot: fixed.Point26_6{
			X: fixed.I(pad + glyphSize + pad),
			Y: fixed.I(pad + face.Ascent + 2),
		},
	}
	d.DrawString(brandWordmark)

	scale := float64(height) / float64(h)
	return imaging.Resize(img, int(float64(w)*scale), height, imaging.Lanczos)
}

// drawMascot draws the firefly mascot: a filled body dot with a smaller
// glow dot offset above-right.
func drawMascot(img *image.NRGBA, r image.Rectangle) {
	cx := r.Min.X + r.Dx()/2
	cy := r.Min.Y + r.Dy()*2/3
	body := r.Dx() / 3
	fillCircle(img, cx, cy, body, brandAccent)

	gx := r.Min.X + r.Dx()*3/4
	gy := r.Min.Y + r.Dy()/4
	fillCircle(img, gx, gy, body/2, brandInk)
}

func fillCircle(img *image.NRGBA, cx, cy, radius int, c color.NRGBA) {
	for y := cy - radius; y <= cy+radius; y++ {
		for x := cx - radius; x <= cx+radius; x++ {
			dx, dy := x-cx, y-cy
			if dx*dx+dy*dy <= radius*radius && image.Pt(x, y).In(img.Bounds()) {
				img.SetNRGBA(x, y, c)
			}
		}
	}
}
