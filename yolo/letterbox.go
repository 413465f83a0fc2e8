// Package yolo holds the backend-independent half of YOLO inference:
// letterbox geometry, tensor layout and output decoding.
package yolo

import (
	"math"

	"github.com/khaledhikmat/vs-track/model"
)

// PadValue is the grey used for letterbox borders.
const PadValue = 114

// Letterbox records how a source image was fitted into the square model input.
type Letterbox struct {
	Size  int
	Scale float64
	NewW  int
	NewH  int
	PadX  int
	PadY  int
	SrcW  int
	SrcH  int
}

// Plan fits w x h into size x size keeping aspect ratio. Images are never
// upscaled; smaller ones are centred in the padding.
func Plan(w, h, size int) Letterbox {
	longest := w
	if h > longest {
		longest = h
	}

	scale := 1.0
	if longest > 0 {
		scale = math.Min(float64(size)/float64(longest), 1.0)
	}

	newW := int(math.Round(float64(w) * scale))
	newH := int(math.Round(float64(h) * scale))
	if newW < 1 {
		newW = 1
	}
	if newH < 1 {
		newH = 1
	}

	return Letterbox{
		Size:  size,
		Scale: scale,
		NewW:  newW,
		NewH:  newH,
		PadX:  (size - newW) / 2,
		PadY:  (size - newH) / 2,
		SrcW:  w,
		SrcH:  h,
	}
}

// Unmap converts a model-space centre box back to a box normalised against
// the source image.
func (l Letterbox) Unmap(cx, cy, w, h float32) model.BBox {
	toSrc := func(v float32, pad int, extent int) float32 {
		if extent <= 0 {
			return 0
		}
		return float32((float64(v) - float64(pad)) / l.Scale / float64(extent))
	}

	return model.BBox{
		X1: toSrc(cx-w/2, l.PadX, l.SrcW),
		Y1: toSrc(cy-h/2, l.PadY, l.SrcH),
		X2: toSrc(cx+w/2, l.PadX, l.SrcW),
		Y2: toSrc(cy+h/2, l.PadY, l.SrcH),
	}.Clamp()
}

// ToCHW converts packed 8-bit BGR pixels of a size x size image into a planar
// RGB float tensor scaled to [0,1].
func ToCHW(bgr []byte, size int) []float32 {
	plane := size * size
	out := make([]float32, 3*plane)
	if len(bgr) < 3*plane {
		return out
	}

	for i := 0; i < plane; i++ {
		b := bgr[i*3]
		g := bgr[i*3+1]
		r := bgr[i*3+2]
		out[i] = float32(r) / 255
		out[plane+i] = float32(g) / 255
		out[2*plane+i] = float32(b) / 255
	}

	return out
}

// Anchors is the prediction count of an anchor-free YOLO head for the given
// input size, one per cell at strides 8, 16 and 32.
func Anchors(size int) int {
	n := 0
	for _, stride := range []int{8, 16, 32} {
		cells := size / stride
		n += cells * cells
	}
	return n
}
