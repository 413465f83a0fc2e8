// Package motion finds regions of change in a frame against a learned
// background and crops them for classification.
package motion

import (
	"image"

	"gocv.io/x/gocv"
	"golang.org/x/xerrors"
)

const (
	// ScaledWidth is the width frames are resized to before background
	// subtraction. Region boxes are expressed in this space.
	ScaledWidth = 640

	foregroundThreshold = 200
	closeIterations     = 2
	openIterations      = 1
	padFraction         = 0.10
)

var ErrEmptyFrame = xerrors.New("empty frame")

// Region is one area of change. Crop is owned by the caller and must be
// closed.
type Region struct {
	// BBox is the tight contour bounding box.
	BBox image.Rectangle
	// CropRect is BBox padded and clamped to the frame; Crop covers it.
	CropRect image.Rectangle
	Area     float64
	Crop     gocv.Mat
}

// Detector keeps a MOG2 background model across frames of one camera. It is
// not safe for concurrent use.
type Detector struct {
	mog2        gocv.BackgroundSubtractorMOG2
	kernel      gocv.Mat
	minArea     float64
	maxArea     float64
	maxOutputPx int
	scaled      image.Point
}

func New(history int, varThreshold, minArea, maxArea float64, maxOutputPx int) *Detector {
	return &Detector{
		mog2:        gocv.NewBackgroundSubtractorMOG2WithParams(history, varThreshold, false),
		kernel:      gocv.GetStructuringElement(gocv.MorphEllipse, image.Pt(5, 5)),
		minArea:     minArea,
		maxArea:     maxArea,
		maxOutputPx: maxOutputPx,
	}
}

// ScaledSize is the size of the last processed frame after rescaling.
func (d *Detector) ScaledSize() image.Point {
	return d.scaled
}

// ProcessFrame updates the background model with frame and returns the
// regions whose contour area falls in [minArea, maxArea].
func (d *Detector) ProcessFrame(frame gocv.Mat) ([]Region, error) {
	if frame.Empty() || frame.Cols() == 0 {
		return nil, ErrEmptyFrame
	}

	size := ScaledDims(frame.Cols(), frame.Rows())
	scaled := gocv.NewMat()
	defer scaled.Close()
	if err := gocv.Resize(frame, &scaled, size, 0, 0, gocv.InterpolationLinear); err != nil {
		return nil, xerrors.Errorf("resize: %w", err)
	}
	d.scaled = size

	mask := gocv.NewMat()
	defer mask.Close()
	if err := d.mog2.Apply(scaled, &mask); err != nil {
		return nil, xerrors.Errorf("background subtraction: %w", err)
	}

	// MOG2 marks shadows at 127; only confident foreground survives.
	gocv.Threshold(mask, &mask, foregroundThreshold, 255, gocv.ThresholdBinary)

	for i := 0; i < closeIterations; i++ {
		if err := gocv.MorphologyEx(mask, &mask, gocv.MorphClose, d.kernel); err != nil {
			return nil, xerrors.Errorf("morphology close: %w", err)
		}
	}
	for i := 0; i < openIterations; i++ {
		if err := gocv.MorphologyEx(mask, &mask, gocv.MorphOpen, d.kernel); err != nil {
			return nil, xerrors.Errorf("morphology open: %w", err)
		}
	}

	contours := gocv.FindContours(mask, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	bounds := image.Rect(0, 0, size.X, size.Y)
	var regions []Region
	for i := 0; i < contours.Size(); i++ {
		c := contours.At(i)
		area := gocv.ContourArea(c)
		if area < d.minArea || area > d.maxArea {
			continue
		}

		box := gocv.BoundingRect(c)
		rect := Pad(box, bounds)
		if rect.Empty() {
			continue
		}

		crop, err := d.crop(scaled, rect)
		if err != nil {
			for _, r := range regions {
				r.Crop.Close()
			}
			return nil, err
		}

		regions = append(regions, Region{
			BBox:     box,
			CropRect: rect,
			Area:     area,
			Crop:     crop,
		})
	}

	return regions, nil
}

func (d *Detector) crop(src gocv.Mat, rect image.Rectangle) (gocv.Mat, error) {
	roi := src.Region(rect)
	defer roi.Close()

	w, h := rect.Dx(), rect.Dy()
	longest := max(w, h)
	if d.maxOutputPx <= 0 || longest <= d.maxOutputPx {
		return roi.Clone(), nil
	}

	scale := float64(d.maxOutputPx) / float64(longest)
	target := image.Pt(max(1, int(float64(w)*scale)), max(1, int(float64(h)*scale)))
	out := gocv.NewMat()
	if err := gocv.Resize(roi, &out, target, 0, 0, gocv.InterpolationArea); err != nil {
		out.Close()
		return gocv.Mat{}, xerrors.Errorf("crop resize: %w", err)
	}
	return out, nil
}

func (d *Detector) Close() error {
	d.kernel.Close()
	return d.mog2.Close()
}

// ScaledDims is the rescaled size of a w x h frame.
func ScaledDims(w, h int) image.Point {
	if w <= 0 {
		return image.Point{}
	}
	return image.Pt(ScaledWidth, max(1, h*ScaledWidth/w))
}

// Pad grows r by 10% of its width and height on each side and clamps the
// result to bounds.
func Pad(r, bounds image.Rectangle) image.Rectangle {
	px := int(float64(r.Dx()) * padFraction)
	py := int(float64(r.Dy()) * padFraction)
	return image.Rect(r.Min.X-px, r.Min.Y-py, r.Max.X+px, r.Max.Y+py).Intersect(bounds)
}
