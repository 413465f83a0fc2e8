package pipeline

import (
	"image"
	"time"

	"gocv.io/x/gocv"

	"github.com/khaledhikmat/vs-track/model"
	"github.com/khaledhikmat/vs-track/motion"
	"github.com/khaledhikmat/vs-track/service/config"
	"github.com/khaledhikmat/vs-track/service/data"
	"github.com/khaledhikmat/vs-track/service/events"
	"github.com/khaledhikmat/vs-track/service/verifier"
)

type ServicesFactory struct {
	CfgSvc      config.IService
	DataSvc     data.IService
	VerifierSvc verifier.IService
	EventsSvc   events.IService
}

// FrameData crosses the capture to classify queue. A frame without regions
// is a tick: it carries no Mat and only ages the tracker.
type FrameData struct {
	Mat       gocv.Mat
	Regions   []motion.Region
	Scaled    image.Point
	Timestamp time.Time
}

func (f FrameData) IsTick() bool {
	return len(f.Regions) == 0
}

// Close releases the frame and every region crop.
func (f FrameData) Close() {
	for _, r := range f.Regions {
		r.Crop.Close()
	}
	if !f.IsTick() {
		f.Mat.Close()
	}
}

// Classifier is the part of classifier.Classifier the classify stage uses.
type Classifier interface {
	Detect(crop gocv.Mat) ([]model.Detection, error)
	DetectTop1(crop gocv.Mat) (model.Detection, bool, error)
	Latency() (mean, std float64)
	Close() error
}

// Scope selects what the classifier sees.
type Scope string

const (
	ScopeRegion Scope = "region"
	ScopeFrame  Scope = "frame"
)

func parseScope(s string) Scope {
	if Scope(s) == ScopeFrame {
		return ScopeFrame
	}
	return ScopeRegion
}

// emit never blocks; a stream nobody drains must not stall a stage.
func emit(stream chan interface{}, v interface{}) bool {
	if stream == nil {
		return false
	}
	select {
	case stream <- v:
		return true
	default:
		return false
	}
}
