package yolo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khaledhikmat/vs-track/model"
)

func TestPlanDownscalesWide(t *testing.T) {
	lb := Plan(1280, 640, 640)

	assert.InDelta(t, 0.5, lb.Scale, 1e-12)
	assert.Equal(t, 640, lb.NewW)
	assert.Equal(t, 320, lb.NewH)
	assert.Equal(t, 0, lb.PadX)
	assert.Equal(t, 160, lb.PadY)
}

func TestPlanNeverUpscales(t *testing.T) {
	lb := Plan(200, 100, 640)

	assert.InDelta(t, 1.0, lb.Scale, 1e-12)
	assert.Equal(t, 200, lb.NewW)
	assert.Equal(t, 220, lb.PadX)
	assert.Equal(t, 270, lb.PadY)
}

func TestUnmapRoundTrip(t *testing.T) {
	lb := Plan(1280, 640, 640)

	// Source box (320,160)-(640,480) lands at (160,240)-(320,400) in model space.
	got := lb.Unmap(240, 320, 160, 160)
	assert.InDelta(t, 0.25, got.X1, 1e-6)
	assert.InDelta(t, 0.25, got.Y1, 1e-6)
	assert.InDelta(t, 0.50, got.X2, 1e-6)
	assert.InDelta(t, 0.75, got.Y2, 1e-6)

	// Boxes reaching into the padding are clamped.
	edge := lb.Unmap(10, 150, 40, 40)
	assert.Zero(t, edge.X1)
	assert.Zero(t, edge.Y1)
}

func TestToCHW(t *testing.T) {
	// 2x2 image, BGR per pixel.
	bgr := []byte{
		10, 20, 30, 40, 50, 60,
		70, 80, 90, 100, 110, 120,
	}
	got := ToCHW(bgr, 2)
	require.Len(t, got, 12)
	assert.InDelta(t, 30.0/255, got[0], 1e-6)   // R of pixel 0
	assert.InDelta(t, 20.0/255, got[4], 1e-6)   // G of pixel 0
	assert.InDelta(t, 10.0/255, got[8], 1e-6)   // B of pixel 0
	assert.InDelta(t, 100.0/255, got[11], 1e-6) // B of pixel 3
}

func TestAnchors(t *testing.T) {
	assert.Equal(t, 8400, Anchors(640))
	assert.Equal(t, 2100, Anchors(320))
}

// attrMajor builds a [1, 4+classes, n] output.
func attrMajor(classes int, anchors [][]float32) ([]float32, []int) {
	attrs := 4 + classes
	n := len(anchors)
	data := make([]float32, attrs*n)
	for i, a := range anchors {
		for k, v := range a {
			data[k*n+i] = v
		}
	}
	return data, []int{1, attrs, n}
}

func TestDecodeAttributeMajor(t *testing.T) {
	// Three classes over eight anchors.
	anchors := make([][]float32, 8)
	for i := range anchors {
		anchors[i] = []float32{0, 0, 0, 0, 0.1, 0.1, 0.1}
	}
	anchors[2] = []float32{100, 100, 20, 20, 0.1, 0.9, 0.2}
	anchors[5] = []float32{300, 300, 50, 50, 0.5, 0.1, 0.1}
	data, shape := attrMajor(3, anchors)

	got, err := Decode(data, shape, 3, 0.5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, Candidate{ClassID: 1, Score: 0.9, CX: 100, CY: 100, W: 20, H: 20}, got[0])
}

func TestDecodeFewerAnchorsThanAttributes(t *testing.T) {
	// [1, 7, 2]: more attribute rows than anchors, still attribute-major.
	data, shape := attrMajor(3, [][]float32{
		{0, 0, 0, 0, 0.1, 0.1, 0.1},
		{40, 30, 8, 6, 0.1, 0.1, 0.8},
	})
	require.Equal(t, []int{1, 7, 2}, shape)

	got, err := Decode(data, shape, 3, 0.5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, Candidate{ClassID: 2, Score: 0.8, CX: 40, CY: 30, W: 8, H: 6}, got[0])
}

func TestDecodeAnchorMajor(t *testing.T) {
	// [1, n, 4+C] as produced by transposed exports.
	data := make([]float32, 7*6)
	copy(data, []float32{10, 10, 4, 4, 0.7, 0.2})
	got, err := Decode(data, []int{1, 7, 6}, 2, 0.5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 0, got[0].ClassID)
}

func TestDecodeBadShape(t *testing.T) {
	_, err := Decode(nil, []int{84, 8400}, COCOClasses, 0.5)
	assert.ErrorIs(t, err, ErrBadShape)

	_, err = Decode(make([]float32, 10), []int{1, 84, 8400}, COCOClasses, 0.5)
	assert.ErrorIs(t, err, ErrBadShape)

	_, err = Decode(make([]float32, 200), []int{1, 10, 20}, COCOClasses, 0.5)
	assert.ErrorIs(t, err, ErrBadShape, "neither dimension is 4+classes")
}

func TestNMS(t *testing.T) {
	cands := []Candidate{
		{ClassID: 0, Score: 0.6, CX: 52, CY: 50, W: 20, H: 20},
		{ClassID: 0, Score: 0.9, CX: 50, CY: 50, W: 20, H: 20},
		{ClassID: 2, Score: 0.8, CX: 50, CY: 50, W: 20, H: 20},
		{ClassID: 0, Score: 0.7, CX: 200, CY: 200, W: 20, H: 20},
	}

	got := NMS(cands, 0.45)
	require.Len(t, got, 3)
	assert.InDelta(t, 0.9, got[0].Score, 1e-6)
	assert.Equal(t, 2, got[1].ClassID, "other classes are not suppressed")
	assert.InDelta(t, 0.7, got[2].Score, 1e-6)
}

func TestToDetectionsAndTop1(t *testing.T) {
	lb := Plan(640, 640, 640)
	dets := ToDetections([]Candidate{
		{ClassID: 4, Score: 0.95, CX: 320, CY: 320, W: 64, H: 64},
		{ClassID: 16, Score: 0.7, CX: 100, CY: 100, W: 64, H: 64},
		{ClassID: 0, Score: 0.8, CX: 500, CY: 500, W: 64, H: 64},
	}, lb)

	require.Len(t, dets, 3)
	assert.Equal(t, model.ClassUnknown, dets[0].Class, "airplane is outside the vocabulary")
	assert.Equal(t, model.ClassDog, dets[1].Class)

	best, ok := Top1(dets)
	require.True(t, ok)
	assert.Equal(t, model.ClassPerson, best.Class)

	_, ok = Top1(dets[:1])
	assert.False(t, ok)
}
