// Package classifier runs a YOLO object detector on change-region crops.
package classifier

import (
	"image"
	"image/color"
	"log/slog"
	"os"
	"time"

	"gocv.io/x/gocv"
	"golang.org/x/xerrors"
	"gonum.org/v1/gonum/stat"

	"github.com/khaledhikmat/vs-track/model"
	"github.com/khaledhikmat/vs-track/service/lgr"
	"github.com/khaledhikmat/vs-track/yolo"
)

const latencyWindow = 256

var (
	ErrModelNotFound = xerrors.New("model file not found")
	ErrModelLoad     = xerrors.New("model load failed")
)

// Classifier is owned by one goroutine. gocv nets are not safe for
// concurrent use.
type Classifier struct {
	be      backend
	accel   Accel
	size    int
	conf    float32
	nms     float32
	latency []float64
	next    int
	runs    int
}

type Option func(*options)

type options struct {
	threads int
}

// WithIntraThreads sets the ONNX Runtime intra-op thread count.
func WithIntraThreads(n int) Option {
	return func(o *options) {
		o.threads = n
	}
}

func New(modelPath string, inputSize int, confThreshold, nmsThreshold float32, accelHint string, opts ...Option) (*Classifier, error) {
	o := options{threads: 2}
	for _, opt := range opts {
		opt(&o)
	}

	accel, err := ParseAccel(accelHint)
	if err != nil {
		return nil, err
	}

	if _, err := os.Stat(modelPath); err != nil {
		return nil, xerrors.Errorf("%s: %w", modelPath, ErrModelNotFound)
	}

	var be backend
	if accel.usesOnnxRuntime() {
		be, err = newOrtBackend(modelPath, inputSize, o.threads, accel)
	} else {
		be, err = newDNNBackend(modelPath, inputSize, accel)
	}
	if err != nil {
		return nil, xerrors.Errorf("%s: %w", accel, err)
	}

	lgr.Logger.Info("classifier loaded",
		slog.String("model", modelPath),
		slog.String("accel", string(accel)),
		slog.Int("inputSize", inputSize),
		slog.String("openCV", gocv.Version()),
	)

	return newWithBackend(be, accel, inputSize, confThreshold, nmsThreshold), nil
}

func newWithBackend(be backend, accel Accel, size int, conf, nms float32) *Classifier {
	return &Classifier{
		be:      be,
		accel:   accel,
		size:    size,
		conf:    conf,
		nms:     nms,
		latency: make([]float64, 0, latencyWindow),
	}
}

func (c *Classifier) Accel() Accel {
	return c.accel
}

// Detect returns every detection above the confidence threshold after
// per-class NMS. Boxes are normalised to the crop. Detections outside the
// vocabulary are returned as ClassUnknown.
func (c *Classifier) Detect(crop gocv.Mat) ([]model.Detection, error) {
	if crop.Empty() {
		return nil, nil
	}

	start := time.Now()
	defer func() {
		c.observe(time.Since(start))
	}()

	input, lb, err := Letterbox(crop, c.size)
	if err != nil {
		return nil, err
	}
	defer input.Close()

	data, shape, err := c.be.run(input)
	if err != nil {
		return nil, xerrors.Errorf("inference: %w", err)
	}

	cands, err := yolo.Decode(data, shape, yolo.COCOClasses, c.conf)
	if err != nil {
		return nil, err
	}

	return yolo.ToDetections(yolo.NMS(cands, c.nms), lb), nil
}

// DetectTop1 returns the most confident detection of a known class.
func (c *Classifier) DetectTop1(crop gocv.Mat) (model.Detection, bool, error) {
	dets, err := c.Detect(crop)
	if err != nil {
		return model.Detection{}, false, err
	}
	best, ok := yolo.Top1(dets)
	return best, ok, nil
}

func (c *Classifier) observe(d time.Duration) {
	ms := float64(d.Microseconds()) / 1000
	if len(c.latency) < latencyWindow {
		c.latency = append(c.latency, ms)
	} else {
		c.latency[c.next] = ms
		c.next = (c.next + 1) % latencyWindow
	}
	c.runs++
}

// Latency reports the mean and standard deviation in milliseconds of recent
// inference calls.
func (c *Classifier) Latency() (mean, std float64) {
	switch len(c.latency) {
	case 0:
		return 0, 0
	case 1:
		return c.latency[0], 0
	}
	return stat.MeanStdDev(c.latency, nil)
}

func (c *Classifier) Runs() int {
	return c.runs
}

func (c *Classifier) Close() error {
	return c.be.close()
}

// Letterbox fits src into a size x size image without upscaling, padding
// with grey. The caller closes the returned Mat.
func Letterbox(src gocv.Mat, size int) (gocv.Mat, yolo.Letterbox, error) {
	lb := yolo.Plan(src.Cols(), src.Rows(), size)

	resized := gocv.NewMat()
	defer resized.Close()
	if lb.NewW != src.Cols() || lb.NewH != src.Rows() {
		if err := gocv.Resize(src, &resized, image.Pt(lb.NewW, lb.NewH), 0, 0, gocv.InterpolationLinear); err != nil {
			return gocv.Mat{}, lb, xerrors.Errorf("letterbox resize: %w", err)
		}
	} else {
		src.CopyTo(&resized)
	}

	out := gocv.NewMat()
	grey := color.RGBA{yolo.PadValue, yolo.PadValue, yolo.PadValue, 0}
	err := gocv.CopyMakeBorder(resized, &out,
		lb.PadY, size-lb.NewH-lb.PadY,
		lb.PadX, size-lb.NewW-lb.PadX,
		gocv.BorderConstant, grey)
	if err != nil {
		out.Close()
		return gocv.Mat{}, lb, xerrors.Errorf("letterbox pad: %w", err)
	}

	return out, lb, nil
}
