package model

import (
	"math"
	"time"
)

// BBox is an axis-aligned box in normalised [0,1] coordinates.
type BBox struct {
	X1 float32 `json:"x1"`
	Y1 float32 `json:"y1"`
	X2 float32 `json:"x2"`
	Y2 float32 `json:"y2"`
}

func (b BBox) Width() float32 {
	return b.X2 - b.X1
}

func (b BBox) Height() float32 {
	return b.Y2 - b.Y1
}

func (b BBox) Area() float32 {
	w, h := b.Width(), b.Height()
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

func (b BBox) Center() (float64, float64) {
	return float64(b.X1+b.X2) / 2, float64(b.Y1+b.Y2) / 2
}

// Clamp limits every edge to the unit square.
func (b BBox) Clamp() BBox {
	return BBox{
		X1: clamp01(b.X1),
		Y1: clamp01(b.Y1),
		X2: clamp01(b.X2),
		Y2: clamp01(b.Y2),
	}
}

// IoU returns the intersection over union of two boxes, 0 when they do not overlap.
func (b BBox) IoU(o BBox) float64 {
	ix1 := math.Max(float64(b.X1), float64(o.X1))
	iy1 := math.Max(float64(b.Y1), float64(o.Y1))
	ix2 := math.Min(float64(b.X2), float64(o.X2))
	iy2 := math.Min(float64(b.Y2), float64(o.Y2))

	iw := ix2 - ix1
	ih := iy2 - iy1
	if iw <= 0 || ih <= 0 {
		return 0
	}

	inter := iw * ih
	union := float64(b.Area()) + float64(o.Area()) - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

type Detection struct {
	Class      ObjectClass `json:"class"`
	Confidence float32     `json:"confidence"`
	BBox       BBox        `json:"bbox"`
}

// CropSnapshot is a JPEG still of a tracked object.
type CropSnapshot struct {
	JPEG      []byte    `json:"-"`
	Timestamp time.Time `json:"timestamp"`
}

// CompletedTrack is the immutable summary of a retired identity.
type CompletedTrack struct {
	ID         string         `json:"id"`
	Class      ObjectClass    `json:"class"`
	Confidence float32        `json:"confidence"`
	Crops      []CropSnapshot `json:"crops"`
	Positions  []BBox         `json:"positions"`
	FirstSeen  time.Time      `json:"firstSeen"`
	LastSeen   time.Time      `json:"lastSeen"`
	Hits       int            `json:"hits"`
}

// BestCrop returns the most recent crop, which is usually the sharpest view
// of an object that has settled into frame.
func (t CompletedTrack) BestCrop() ([]byte, bool) {
	if len(t.Crops) == 0 {
		return nil, false
	}
	return t.Crops[len(t.Crops)-1].JPEG, true
}

type MovementSummary struct {
	Description  string  `json:"description"`
	Direction    string  `json:"direction"`
	SpeedLabel   string  `json:"speedLabel"`
	EntryZone    string  `json:"entryZone"`
	ExitZone     string  `json:"exitZone"`
	DurationSecs float64 `json:"durationSecs"`
}
