package yolo

import (
	"sort"

	"golang.org/x/xerrors"

	"github.com/khaledhikmat/vs-track/model"
)

var ErrBadShape = xerrors.New("unexpected yolo output shape")

// COCOClasses is the class count of the stock YOLO exports.
const COCOClasses = 80

// Candidate is one anchor that passed the score threshold, in model space.
type Candidate struct {
	ClassID int
	Score   float32
	CX      float32
	CY      float32
	W       float32
	H       float32
}

func (c Candidate) box() model.BBox {
	return model.BBox{X1: c.CX - c.W/2, Y1: c.CY - c.H/2, X2: c.CX + c.W/2, Y2: c.CY + c.H/2}
}

// Decode reads a [1, 4+classes, N] or [1, N, 4+classes] output; the layout
// is the one whose dimension equals 4+classes, attribute-major when both do.
// Anchors whose best class score is not above conf are dropped.
func Decode(data []float32, shape []int, classes int, conf float32) ([]Candidate, error) {
	if len(shape) != 3 || shape[0] != 1 || classes < 1 {
		return nil, xerrors.Errorf("shape %v: %w", shape, ErrBadShape)
	}

	attrs := 4 + classes
	var anchors int
	attrMajor := true
	switch attrs {
	case shape[1]:
		anchors = shape[2]
	case shape[2]:
		anchors = shape[1]
		attrMajor = false
	default:
		return nil, xerrors.Errorf("shape %v for %d classes: %w", shape, classes, ErrBadShape)
	}
	if len(data) < attrs*anchors {
		return nil, xerrors.Errorf("shape %v with %d values: %w", shape, len(data), ErrBadShape)
	}

	at := func(a, i int) float32 {
		if attrMajor {
			return data[a*anchors+i]
		}
		return data[i*attrs+a]
	}

	var out []Candidate
	for i := 0; i < anchors; i++ {
		best := -1
		var score float32
		for c := 0; c < attrs-4; c++ {
			if s := at(4+c, i); best < 0 || s > score {
				best, score = c, s
			}
		}
		if score <= conf {
			continue
		}
		out = append(out, Candidate{
			ClassID: best,
			Score:   score,
			CX:      at(0, i),
			CY:      at(1, i),
			W:       at(2, i),
			H:       at(3, i),
		})
	}

	return out, nil
}

// NMS suppresses overlapping candidates of the same class, keeping the
// highest score. Equal scores keep input order.
func NMS(cands []Candidate, threshold float32) []Candidate {
	idx := make([]int, len(cands))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(i, j int) bool {
		return cands[idx[i]].Score > cands[idx[j]].Score
	})

	suppressed := make([]bool, len(cands))
	var keep []Candidate
	for n, i := range idx {
		if suppressed[i] {
			continue
		}
		keep = append(keep, cands[i])
		bi := cands[i].box()
		for _, j := range idx[n+1:] {
			if suppressed[j] || cands[j].ClassID != cands[i].ClassID {
				continue
			}
			if bi.IoU(cands[j].box()) > float64(threshold) {
				suppressed[j] = true
			}
		}
	}

	return keep
}

// ToDetections undoes the letterbox and maps class ids to the vocabulary.
// Unknown classes are kept.
func ToDetections(cands []Candidate, lb Letterbox) []model.Detection {
	out := make([]model.Detection, 0, len(cands))
	for _, c := range cands {
		out = append(out, model.Detection{
			Class:      model.ClassFromCOCO(c.ClassID),
			Confidence: c.Score,
			BBox:       lb.Unmap(c.CX, c.CY, c.W, c.H),
		})
	}
	return out
}

// Top1 returns the most confident detection of a known class.
func Top1(dets []model.Detection) (model.Detection, bool) {
	var best model.Detection
	found := false
	for _, d := range dets {
		if d.Class == model.ClassUnknown {
			continue
		}
		if !found || d.Confidence > best.Confidence {
			best = d
			found = true
		}
	}
	return best, found
}
