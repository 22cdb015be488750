package vision

import (
	"image"

	"golang.org/x/image/draw"
)

// Grayscale converts a frame to a single-channel image. A *image.Gray with
// origin at (0,0) is returned unchanged.
func Grayscale(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok && g.Rect.Min == (image.Point{}) {
		return g
	}

	b := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(gray, gray.Bounds(), img, b.Min, draw.Src)
	return gray
}

// Crop returns the part of gray covered by rect, clipped to the image bounds.
// The result shares pixels with gray.
func Crop(gray *image.Gray, rect image.Rectangle) *image.Gray {
	r := rect.Intersect(gray.Bounds())
	if r.Empty() {
		return image.NewGray(image.Rectangle{})
	}
	return gray.SubImage(r).(*image.Gray)
}

// Normalize scales a crop to a size x size sample using bilinear interpolation.
// The result never shares pixels with the input.
func Normalize(crop *image.Gray, size int) *image.Gray {
	dst := image.NewGray(image.Rect(0, 0, size, size))
	if crop.Bounds().Empty() {
		return dst
	}
	draw.BiLinear.Scale(dst, dst.Bounds(), crop, crop.Bounds(), draw.Src, nil)
	return dst
}
