// Package render zeichnet Gesichtsrahmen und Status-Badge in die Frames und hält
// die letzten annotierten Frames für den Preview-Endpunkt vor.
package render

import (
	"image"
	"image/color"

	"facegate/internal/core/session"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Badge-Geometrie oben rechts
const (
	BadgeWidth  = 150
	BadgeHeight = 40
	BadgeMargin = 20
	boxStroke   = 2
)

var (
	ColorBox        = color.RGBA{R: 0, G: 255, B: 0, A: 255}
	ColorCollecting = color.RGBA{R: 0, G: 128, B: 255, A: 255}
	ColorPass       = color.RGBA{R: 0, G: 255, B: 0, A: 255}
	ColorFail       = color.RGBA{R: 255, G: 0, B: 0, A: 255}
	colorText       = color.RGBA{R: 255, G: 255, B: 255, A: 255}
)

// BadgeColor liefert die Füllfarbe des Badges und ob überhaupt eines gezeichnet wird
func BadgeColor(st session.Status) (color.RGBA, bool) {
	switch st.Kind {
	case session.StatusCollecting, session.StatusCompleted:
		return ColorCollecting, true
	case session.StatusPass:
		return ColorPass, true
	case session.StatusFail:
		return ColorFail, true
	}
	return color.RGBA{}, false
}

// Annotate liefert eine Kopie von frame mit Rahmen pro Gesicht und Status-Badge.
// text landet auf dem Badge; die eingebaute Schrift kann nur ASCII.
func Annotate(frame image.Image, ev session.FrameEvent, text string) *image.RGBA {
	b := frame.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), frame, b.Min, draw.Src)

	for _, f := range ev.Faces {
		strokeRect(out, f.Rect.Sub(b.Min), ColorBox)
	}

	fill, ok := BadgeColor(ev.Status)
	if !ok {
		return out
	}
	badge := BadgeRect(out.Bounds())
	draw.Draw(out, badge, image.NewUniform(fill), image.Point{}, draw.Src)

	d := &font.Drawer{
		Dst:  out,
		Src:  image.NewUniform(colorText),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(badge.Min.X+10, badge.Min.Y+10+basicfont.Face7x13.Ascent),
	}
	d.DrawString(text)
	return out
}

// BadgeRect platziert das Badge oben rechts in bounds
func BadgeRect(bounds image.Rectangle) image.Rectangle {
	x1 := bounds.Max.X - BadgeMargin
	y0 := bounds.Min.Y + BadgeMargin
	return image.Rect(x1-BadgeWidth, y0, x1, y0+BadgeHeight).Intersect(bounds)
}

func strokeRect(dst *image.RGBA, r image.Rectangle, c color.Color) {
	r = r.Intersect(dst.Bounds())
	if r.Empty() {
		return
	}
	src := image.NewUniform(c)
	edges := []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+boxStroke),
		image.Rect(r.Min.X, r.Max.Y-boxStroke, r.Max.X, r.Max.Y),
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+boxStroke, r.Max.Y),
		image.Rect(r.Max.X-boxStroke, r.Min.Y, r.Max.X, r.Max.Y),
	}
	for _, e := range edges {
		draw.Draw(dst, e.Intersect(r), src, image.Point{}, draw.Src)
	}
}
