package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBBoxIoU(t *testing.T) {
	a := BBox{X1: 0, Y1: 0, X2: 0.5, Y2: 0.5}

	assert.InDelta(t, 1.0, a.IoU(a), 1e-9)
	assert.Zero(t, a.IoU(BBox{X1: 0.6, Y1: 0.6, X2: 0.9, Y2: 0.9}))

	// Half overlap on one axis: inter 0.125, union 0.375.
	b := BBox{X1: 0.25, Y1: 0, X2: 0.75, Y2: 0.5}
	assert.InDelta(t, 1.0/3.0, a.IoU(b), 1e-6)
	assert.InDelta(t, a.IoU(b), b.IoU(a), 1e-12)
}

func TestBBoxDegenerate(t *testing.T) {
	empty := BBox{X1: 0.5, Y1: 0.5, X2: 0.5, Y2: 0.5}
	assert.Zero(t, empty.Area())
	assert.Zero(t, empty.IoU(empty))

	c := BBox{X1: -0.2, Y1: 0.1, X2: 1.3, Y2: 0.9}.Clamp()
	assert.Equal(t, BBox{X1: 0, Y1: 0.1, X2: 1, Y2: 0.9}, c)
}

func TestClassFromCOCO(t *testing.T) {
	assert.Equal(t, ClassPerson, ClassFromCOCO(0))
	assert.Equal(t, ClassTruck, ClassFromCOCO(7))
	assert.Equal(t, ClassCellPhone, ClassFromCOCO(67))
	assert.Equal(t, ClassUnknown, ClassFromCOCO(4))
	assert.Equal(t, ClassUnknown, ClassFromCOCO(79))
	assert.Equal(t, "cell phone", ClassCellPhone.String())
}

func TestObjectClassJSON(t *testing.T) {
	b, err := json.Marshal(Detection{Class: ClassDog, Confidence: 0.5})
	require.NoError(t, err)
	assert.Contains(t, string(b), `"class":"dog"`)

	var d Detection
	require.NoError(t, json.Unmarshal(b, &d))
	assert.Equal(t, ClassDog, d.Class)
}

func TestCompletedTrackBestCrop(t *testing.T) {
	_, ok := CompletedTrack{}.BestCrop()
	assert.False(t, ok)

	ct := CompletedTrack{Crops: []CropSnapshot{{JPEG: []byte{1}}, {JPEG: []byte{2}}}}
	b, ok := ct.BestCrop()
	require.True(t, ok)
	assert.Equal(t, []byte{2}, b)
}

func TestGenError(t *testing.T) {
	e := GenError("capture", KindFatal, assert.AnError, nil, "open %s", "cam1")
	assert.Equal(t, "open cam1", e.Message)
	assert.Equal(t, "fatal", e.Kind.String())
	assert.ErrorIs(t, e, assert.AnError)
	assert.NotEmpty(t, e.StackTrace)
}
