package motion

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func TestScaledDims(t *testing.T) {
	assert.Equal(t, image.Pt(640, 360), ScaledDims(1920, 1080))
	assert.Equal(t, image.Pt(640, 480), ScaledDims(320, 240))
	assert.Equal(t, image.Point{}, ScaledDims(0, 10))
}

func TestPad(t *testing.T) {
	bounds := image.Rect(0, 0, 640, 360)

	got := Pad(image.Rect(100, 100, 200, 150), bounds)
	assert.Equal(t, image.Rect(90, 95, 210, 155), got)

	// Padding never leaves the frame.
	got = Pad(image.Rect(0, 0, 50, 50), bounds)
	assert.Equal(t, image.Rect(0, 0, 55, 55), got)

	got = Pad(image.Rect(600, 340, 640, 360), bounds)
	assert.Equal(t, image.Rect(596, 338, 640, 360), got)
}

func TestProcessFrameEmpty(t *testing.T) {
	d := New(500, 40, 1500, 200000, 400)
	defer d.Close()

	_, err := d.ProcessFrame(gocv.NewMat())
	assert.ErrorIs(t, err, ErrEmptyFrame)
}

func TestProcessFrameFindsNewObject(t *testing.T) {
	d := New(500, 40, 1500, 200000, 64)
	defer d.Close()

	for i := 0; i < 20; i++ {
		bg := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
		regions, err := d.ProcessFrame(bg)
		require.NoError(t, err)
		for _, r := range regions {
			r.Crop.Close()
		}
		bg.Close()
	}

	frame := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	defer frame.Close()
	gocv.Rectangle(&frame, image.Rect(200, 150, 300, 250), color.RGBA{255, 255, 255, 0}, -1)

	regions, err := d.ProcessFrame(frame)
	require.NoError(t, err)
	require.Len(t, regions, 1)
	defer regions[0].Crop.Close()

	r := regions[0]
	assert.Equal(t, image.Pt(640, 480), d.ScaledSize())
	assert.InDelta(t, 200, r.BBox.Min.X, 3)
	assert.InDelta(t, 150, r.BBox.Min.Y, 3)
	assert.True(t, r.CropRect.In(image.Rect(0, 0, 640, 480)))
	assert.True(t, r.BBox.In(r.CropRect))

	// Crops are capped at maxOutputPx on the longest edge.
	assert.LessOrEqual(t, max(r.Crop.Cols(), r.Crop.Rows()), 64)
}
