package camera

import (
	"image"
	"image/color"
	"image/draw"
	"sync"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

const (
	stampFontSize = 20.0
	stampPadding  = 6
	stampMargin   = 16
)

var (
	stampFaceOnce sync.Once
	stampFace     font.Face
)

func face() font.Face {
	stampFaceOnce.Do(func() {
		f, err := opentype.Parse(goregular.TTF)
		if err != nil {
			return
		}
		stampFace, _ = opentype.NewFace(f, &opentype.FaceOptions{
			Size:    stampFontSize,
			DPI:     72,
			Hinting: font.HintingFull,
		})
	})
	return stampFace
}

// StampTime draws the capture time in the lower-right corner of the frame,
// white on a translucent dark box, so finished lapses carry a wall-clock
// reference.
func StampTime(img *image.RGBA, ts time.Time) {
	f := face()
	if f == nil {
		return
	}

	label := ts.Format("2006-01-02 15:04:05")
	drawer := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.White),
		Face: f,
	}

	textWidth := drawer.MeasureString(label).Round()
	metrics := f.Metrics()

	x := img.Bounds().Max.X - textWidth - stampMargin
	y := img.Bounds().Max.Y - stampMargin

	box := image.Rect(
		x-stampPadding,
		y-metrics.Ascent.Round()-stampPadding,
		x+textWidth+stampPadding,
		y+metrics.Descent.Round()+stampPadding,
	)
	draw.Draw(img, box.Intersect(img.Bounds()), &image.Uniform{color.RGBA{0, 0, 0, 160}}, image.Point{}, draw.Over)

	drawer.Dot = fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)}
	drawer.DrawString(label)
}
