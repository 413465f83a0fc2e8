package pipeline

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/natefinch/lumberjack"

	"github.com/khaledhikmat/vs-track/classifier"
	"github.com/khaledhikmat/vs-track/model"
	"github.com/khaledhikmat/vs-track/service/lgr"
	"github.com/khaledhikmat/vs-track/stream"
	"github.com/khaledhikmat/vs-track/tracker"
)

type Option func(*startOptions)

type startOptions struct {
	errorStream chan interface{}
	statsStream chan interface{}
	classifier  Classifier
	streamOpts  []stream.Option
}

// WithErrorStream receives model.CustomError values. Sends never block.
func WithErrorStream(ch chan interface{}) Option {
	return func(o *startOptions) {
		o.errorStream = ch
	}
}

// WithStatsStream receives model.CaptureStats, model.ClassifierStats and
// model.VerifierStats values. Sends never block.
func WithStatsStream(ch chan interface{}) Option {
	return func(o *startOptions) {
		o.statsStream = ch
	}
}

// WithClassifier replaces the configured YOLO classifier.
func WithClassifier(c Classifier) Option {
	return func(o *startOptions) {
		o.classifier = c
	}
}

func WithStreamOptions(opts ...stream.Option) Option {
	return func(o *startOptions) {
		o.streamOpts = append(o.streamOpts, opts...)
	}
}

// Handle controls one running camera pipeline.
type Handle struct {
	RunID  string
	Camera model.Camera

	cancel context.CancelFunc
	done   chan struct{}
	mu     sync.Mutex
	err    error
}

// Stop asks the pipeline to shut down. Queued work is still drained.
func (h *Handle) Stop() {
	h.cancel()
}

// Wait blocks until every stage has exited.
func (h *Handle) Wait() {
	<-h.done
}

func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Err is the fatal error that ended the pipeline, if any.
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

func (h *Handle) fail(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.err == nil {
		h.err = err
	}
}

// Start builds the classifier and launches the capture, classify and verify
// stages for camera. Classifier construction errors are returned; stream
// failures end the pipeline and are reported through Handle.Err.
func Start(ctx context.Context, svcs ServicesFactory, camera model.Camera, opts ...Option) (*Handle, error) {
	o := startOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	runID := uuid.NewString()
	pp := svcs.CfgSvc.GetPipelineParameters()
	cp := svcs.CfgSvc.GetClassifierParameters()
	tp := svcs.CfgSvc.GetTrackerParameters()

	lgr.Logger.Info("pipeline starting....",
		slog.String("runID", runID),
		slog.String("camera", camera.Name),
		slog.String("rtsp", camera.RtspURL),
		slog.String("accel", cp.AccelHint),
		slog.String("scope", cp.Scope),
		slog.String("matcher", tp.Matcher),
	)

	clf := o.classifier
	if clf == nil {
		c, err := classifier.New(cp.ModelPath, cp.InputSize, cp.ConfidenceThreshold, cp.NMSThreshold, cp.AccelHint,
			classifier.WithIntraThreads(cp.IntraThreads))
		if err != nil {
			return nil, err
		}
		clf = c
	}

	trk := tracker.New(tracker.Config{
		IoUMatchThreshold: tp.IoUMatchThreshold,
		MaxAgeFrames:      tp.MaxAgeFrames,
		MinHits:           tp.MinHits,
		CropMaxPx:         tp.CropMaxPx,
		CropsPerTrack:     tp.CropsPerTrack,
		Matcher:           tracker.MatchingAlgorithm(tp.Matcher),
	})

	var journal io.WriteCloser
	if file := svcs.CfgSvc.GetDetectionsLogFile(); file != "" {
		journal = &lumberjack.Logger{
			Filename:   file,
			MaxSize:    10, // MB
			MaxBackups: 5,
			MaxAge:     7, // days
			Compress:   true,
		}
	}

	canxCtx, cancel := context.WithCancel(ctx)
	h := &Handle{
		RunID:  runID,
		Camera: camera,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	statsPeriod := time.Duration(max(pp.StatsPeriodSecs, 1)) * time.Second
	frames := make(chan FrameData, max(pp.CaptureQueueSize, 1))
	tracks := make(chan model.CompletedTrack, max(pp.VerifyQueueSize, 1))

	dial := func(ctx context.Context) (*stream.Source, error) {
		return stream.Dial(ctx, camera.RtspURL, camera.ID, pp.SamplingStride, o.streamOpts...)
	}

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		framer(canxCtx, svcs, camera, dial, o.errorStream, o.statsStream, frames, h.fail)
	}()
	go func() {
		defer wg.Done()
		defer clf.Close()
		detector(canxCtx, camera, clf, trk, parseScope(cp.Scope), statsPeriod, o.errorStream, o.statsStream, frames, tracks)
	}()
	go func() {
		defer wg.Done()
		var w io.Writer
		if journal != nil {
			w = journal
		}
		newAlerter(svcs, camera, w, o.errorStream).run(canxCtx, statsPeriod, o.statsStream, tracks)
	}()

	go func() {
		wg.Wait()
		if journal != nil {
			journal.Close()
		}
		cancel()
		lgr.Logger.Info("pipeline stopped",
			slog.String("runID", runID),
			slog.String("camera", camera.Name),
		)
		close(h.done)
	}()

	return h, nil
}
