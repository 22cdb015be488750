package vision

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGrayscaleConvertsColorFrames(t *testing.T) {
	frame := image.NewRGBA(image.Rect(10, 10, 30, 20))
	for y := 10; y < 20; y++ {
		for x := 10; x < 30; x++ {
			frame.Set(x, y, color.RGBA{R: 255, G: 255, B: 255, A: 255})
		}
	}

	gray := Grayscale(frame)
	require.Equal(t, image.Rect(0, 0, 20, 10), gray.Bounds())
	assert.Equal(t, uint8(255), gray.GrayAt(0, 0).Y)
	assert.Equal(t, uint8(255), gray.GrayAt(19, 9).Y)
}

func TestGrayscaleKeepsGrayFrames(t *testing.T) {
	frame := image.NewGray(image.Rect(0, 0, 4, 4))
	assert.Same(t, frame, Grayscale(frame))
}

func TestCropClipsToBounds(t *testing.T) {
	gray := image.NewGray(image.Rect(0, 0, 100, 80))

	crop := Crop(gray, image.Rect(60, 40, 140, 120))
	assert.Equal(t, image.Rect(60, 40, 100, 80), crop.Bounds())

	outside := Crop(gray, image.Rect(200, 200, 260, 260))
	assert.True(t, outside.Bounds().Empty())
}

func TestNormalizeProducesFixedSizeSample(t *testing.T) {
	gray := image.NewGray(image.Rect(0, 0, 300, 200))
	for i := range gray.Pix {
		gray.Pix[i] = 90
	}

	sample := Normalize(Crop(gray, image.Rect(20, 30, 180, 190)), 100)
	require.Equal(t, image.Rect(0, 0, 100, 100), sample.Bounds())
	assert.Equal(t, uint8(90), sample.GrayAt(0, 0).Y)
	assert.Equal(t, uint8(90), sample.GrayAt(50, 50).Y)
	assert.Equal(t, uint8(90), sample.GrayAt(99, 99).Y)

	// the sample must not alias the frame
	gray.Pix[0] = 0
	assert.Equal(t, uint8(90), sample.GrayAt(0, 0).Y)
}

func TestNormalizeEmptyCrop(t *testing.T) {
	sample := Normalize(image.NewGray(image.Rectangle{}), 100)
	assert.Equal(t, image.Rect(0, 0, 100, 100), sample.Bounds())
}
