package classifier

import (
	"image"
	"log/slog"
	"os"
	"strings"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
	"gocv.io/x/gocv"
	"golang.org/x/xerrors"

	"github.com/khaledhikmat/vs-track/service/lgr"
	"github.com/khaledhikmat/vs-track/yolo"
)

// Accel selects the inference runtime and device.
type Accel string

const (
	AccelCPU                 Accel = "cpu"
	AccelCUDA                Accel = "cuda"
	AccelOpenVINO            Accel = "openvino"
	AccelOnnxRuntime         Accel = "onnxruntime"
	AccelOnnxRuntimeOpenVINO Accel = "onnxruntime-openvino"
)

var ErrUnknownAccel = xerrors.New("unknown accel hint")

func ParseAccel(hint string) (Accel, error) {
	switch a := Accel(strings.ToLower(strings.TrimSpace(hint))); a {
	case "":
		return AccelCPU, nil
	case AccelCPU, AccelCUDA, AccelOpenVINO, AccelOnnxRuntime, AccelOnnxRuntimeOpenVINO:
		return a, nil
	default:
		return "", xerrors.Errorf("%q: %w", hint, ErrUnknownAccel)
	}
}

func (a Accel) usesOnnxRuntime() bool {
	return a == AccelOnnxRuntime || a == AccelOnnxRuntimeOpenVINO
}

// backend runs the network on a letterboxed size x size BGR image and
// returns the raw output with its shape.
type backend interface {
	run(input gocv.Mat) ([]float32, []int, error)
	close() error
}

type dnnBackend struct {
	net  gocv.Net
	size int
}

func newDNNBackend(modelPath string, size int, accel Accel) (*dnnBackend, error) {
	net := gocv.ReadNet(modelPath, "")
	if net.Empty() {
		return nil, xerrors.Errorf("read %s: %w", modelPath, ErrModelLoad)
	}

	be, target := gocv.NetBackendDefault, gocv.NetTargetCPU
	switch accel {
	case AccelCUDA:
		be, target = gocv.NetBackendCUDA, gocv.NetTargetCUDA
	case AccelOpenVINO:
		be = gocv.NetBackendOpenVINO
	}

	if err := net.SetPreferableBackend(be); err != nil {
		net.Close()
		return nil, xerrors.Errorf("set backend: %w", err)
	}
	if err := net.SetPreferableTarget(target); err != nil {
		net.Close()
		return nil, xerrors.Errorf("set target: %w", err)
	}

	return &dnnBackend{net: net, size: size}, nil
}

func (b *dnnBackend) run(input gocv.Mat) ([]float32, []int, error) {
	blob := gocv.BlobFromImage(input, 1.0/255.0, image.Pt(b.size, b.size), gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	b.net.SetInput(blob, "")
	output := b.net.Forward("")
	defer output.Close()

	data, err := output.DataPtrFloat32()
	if err != nil {
		return nil, nil, xerrors.Errorf("read output: %w", err)
	}

	// The Mat owns data; copy before it is closed.
	out := make([]float32, len(data))
	copy(out, data)
	return out, output.Size(), nil
}

func (b *dnnBackend) close() error {
	return b.net.Close()
}

var (
	ortOnce sync.Once
	ortErr  error
)

// initOnnxRuntime loads the shared library once per process. ONNXRUNTIME_LIB
// overrides the library location.
func initOnnxRuntime() error {
	ortOnce.Do(func() {
		if lib := os.Getenv("ONNXRUNTIME_LIB"); lib != "" {
			ort.SetSharedLibraryPath(lib)
		}
		ortErr = ort.InitializeEnvironment()
	})
	return ortErr
}

type ortBackend struct {
	session *ort.DynamicAdvancedSession
	size    int
	outDims ort.Shape
}

func newOrtBackend(modelPath string, size, threads int, accel Accel) (*ortBackend, error) {
	if err := initOnnxRuntime(); err != nil {
		return nil, xerrors.Errorf("onnxruntime init: %w", err)
	}

	inName, outName := "images", "output0"
	outDims := ort.NewShape(1, 4+yolo.COCOClasses, int64(yolo.Anchors(size)))
	if ins, outs, err := ort.GetInputOutputInfo(modelPath); err == nil && len(ins) > 0 && len(outs) > 0 {
		inName, outName = ins[0].Name, outs[0].Name
		if staticShape(outs[0].Dimensions) {
			outDims = outs[0].Dimensions
		}
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, err
	}
	defer opts.Destroy()

	if threads > 0 {
		opts.SetIntraOpNumThreads(threads)
	}
	opts.SetInterOpNumThreads(1)

	if accel == AccelOnnxRuntimeOpenVINO {
		if err := opts.AppendExecutionProviderOpenVINO(map[string]string{"device_type": "CPU"}); err != nil {
			lgr.Logger.Warn("openvino execution provider unavailable, using cpu",
				slog.Any("error", err),
			)
		}
	}

	session, err := ort.NewDynamicAdvancedSession(modelPath, []string{inName}, []string{outName}, opts)
	if err != nil {
		return nil, xerrors.Errorf("session %s: %w", modelPath, err)
	}

	return &ortBackend{session: session, size: size, outDims: outDims}, nil
}

func staticShape(s ort.Shape) bool {
	if len(s) != 3 {
		return false
	}
	for _, d := range s {
		if d <= 0 {
			return false
		}
	}
	return true
}

func (b *ortBackend) run(input gocv.Mat) ([]float32, []int, error) {
	chw := yolo.ToCHW(input.ToBytes(), b.size)
	in, err := ort.NewTensor(ort.NewShape(1, 3, int64(b.size), int64(b.size)), chw)
	if err != nil {
		return nil, nil, err
	}
	defer in.Destroy()

	out, err := ort.NewEmptyTensor[float32](b.outDims)
	if err != nil {
		return nil, nil, err
	}
	defer out.Destroy()

	if err := b.session.Run([]ort.Value{in}, []ort.Value{out}); err != nil {
		return nil, nil, xerrors.Errorf("run: %w", err)
	}

	data := make([]float32, len(out.GetData()))
	copy(data, out.GetData())

	shape := make([]int, len(b.outDims))
	for i, d := range b.outDims {
		shape[i] = int(d)
	}
	return data, shape, nil
}

func (b *ortBackend) close() error {
	return b.session.Destroy()
}
