package pipeline

import (
	"image"

	"gocv.io/x/gocv"

	"github.com/khaledhikmat/vs-track/model"
)

const (
	jpegQuality = 75
	// Smaller encodes are blank or corrupt.
	minCropBytes = 256
)

// frameCrop cuts JPEG stills out of one frame for the tracker. A nil mat
// yields no crops.
type frameCrop struct {
	mat *gocv.Mat
}

func (f frameCrop) Crop(b model.BBox, maxPx int) ([]byte, bool) {
	if f.mat == nil || f.mat.Empty() {
		return nil, false
	}

	w, h := f.mat.Cols(), f.mat.Rows()
	rect := PixelRect(b, w, h)
	if rect.Dx() < 2 || rect.Dy() < 2 {
		return nil, false
	}

	roi := f.mat.Region(rect)
	defer roi.Close()

	src := roi
	longest := max(rect.Dx(), rect.Dy())
	if maxPx > 0 && longest > maxPx {
		scale := float64(maxPx) / float64(longest)
		resized := gocv.NewMat()
		defer resized.Close()
		size := image.Pt(max(1, int(float64(rect.Dx())*scale)), max(1, int(float64(rect.Dy())*scale)))
		if err := gocv.Resize(roi, &resized, size, 0, 0, gocv.InterpolationArea); err != nil {
			return nil, false
		}
		src = resized
	}

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, src, []int{gocv.IMWriteJpegQuality, jpegQuality})
	if err != nil {
		return nil, false
	}
	defer buf.Close()

	out := buf.GetBytes()
	if len(out) < minCropBytes {
		return nil, false
	}
	return out, true
}

// PixelRect converts a normalised box into a pixel rectangle inside a
// w x h image.
func PixelRect(b model.BBox, w, h int) image.Rectangle {
	b = b.Clamp()
	return image.Rect(
		int(b.X1*float32(w)),
		int(b.Y1*float32(h)),
		int(b.X2*float32(w)),
		int(b.Y2*float32(h)),
	).Intersect(image.Rect(0, 0, w, h))
}

// ToFrame maps a detection normalised to a region crop into coordinates
// normalised to the whole frame. rect is the crop rectangle in a frame of
// size scaled.
func ToFrame(d model.Detection, rect image.Rectangle, scaled image.Point) model.Detection {
	if scaled.X <= 0 || scaled.Y <= 0 {
		return d
	}

	fx := func(v float32) float32 {
		return (float32(rect.Min.X) + v*float32(rect.Dx())) / float32(scaled.X)
	}
	fy := func(v float32) float32 {
		return (float32(rect.Min.Y) + v*float32(rect.Dy())) / float32(scaled.Y)
	}

	d.BBox = model.BBox{
		X1: fx(d.BBox.X1),
		Y1: fy(d.BBox.Y1),
		X2: fx(d.BBox.X2),
		Y2: fy(d.BBox.Y2),
	}.Clamp()
	return d
}
