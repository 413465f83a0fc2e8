package pipeline

import (
	"context"
	"log/slog"
	"runtime"
	"time"

	"github.com/khaledhikmat/vs-track/model"
	"github.com/khaledhikmat/vs-track/service/lgr"
	"github.com/khaledhikmat/vs-track/tracker"
)

// detector runs detection on every frame from in, feeds the tracker and
// forwards completed tracks. It exits when in is closed, flushing the
// tracker first, and closes out.
func detector(canxCtx context.Context, camera model.Camera, clf Classifier, trk *tracker.Tracker, scope Scope, statsPeriod time.Duration, errorStream chan interface{}, statsStream chan interface{}, in chan FrameData, out chan model.CompletedTrack) {
	defer close(out)

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	var startTime = time.Now()
	stats := model.ClassifierStats{
		Name:   "classify",
		Camera: camera.Name,
	}
	snapshot := func() model.ClassifierStats {
		s := stats
		s.ActiveTracks = trk.Len()
		s.NoiseDrops = trk.NoiseDrops()
		s.AvgProcTime, s.StdProcTime = clf.Latency()
		s.Uptime = int64(time.Since(startTime).Seconds())
		return s
	}
	defer func() {
		emit(statsStream, snapshot())
	}()

	forward := func(done []model.CompletedTrack, wait bool) {
		for _, ct := range done {
			stats.TracksCompleted++
			if wait {
				out <- ct
				continue
			}
			select {
			case out <- ct:
			default:
				stats.QueueDrops++
				lgr.Logger.Warn("verify queue full, dropping track",
					slog.String("reason", string(model.DropQueueFull)),
					slog.String("track", ct.ID),
				)
			}
		}
	}

	// Tracks retired below MinHits never leave the tracker.
	noise := trk.NoiseDrops()
	logNoise := func() {
		if n := trk.NoiseDrops(); n > noise {
			lgr.Logger.Debug("tracks dropped",
				slog.String("reason", string(model.DropNoise)),
				slog.Int("count", n-noise),
				slog.String("camera", camera.Name),
			)
			noise = n
		}
	}

	statsTicker := time.NewTicker(statsPeriod)
	defer statsTicker.Stop()

	for {
		select {
		case <-statsTicker.C:
			emit(statsStream, snapshot())

		case frame, ok := <-in:
			if !ok {
				// Shutdown: whatever is still tracked is final.
				forward(trk.Flush(), true)
				logNoise()
				lgr.Logger.Info("classifier input closed",
					slog.String("camera", camera.Name),
					slog.Bool("cancelled", canxCtx.Err() != nil),
				)
				return
			}

			stats.Frames++
			dets := detect(clf, scope, frame, &stats, errorStream)
			stats.Detections += len(dets)

			src := frameCrop{}
			if !frame.IsTick() {
				src.mat = &frame.Mat
			}
			done := trk.Update(dets, src, frame.Timestamp)
			frame.Close()
			logNoise()
			forward(done, false)
		}
	}
}

// detect returns known-class detections normalised to the frame.
func detect(clf Classifier, scope Scope, frame FrameData, stats *model.ClassifierStats, errorStream chan interface{}) []model.Detection {
	if frame.IsTick() {
		return nil
	}

	if scope == ScopeFrame {
		all, err := clf.Detect(frame.Mat)
		if err != nil {
			stats.Errors++
			emit(errorStream, model.GenError("classify", model.KindTransient, err, nil, "frame inference failed"))
			return nil
		}
		dets := all[:0]
		for _, d := range all {
			if d.Class != model.ClassUnknown {
				dets = append(dets, d)
			}
		}
		return dets
	}

	var dets []model.Detection
	for _, r := range frame.Regions {
		d, ok, err := clf.DetectTop1(r.Crop)
		if err != nil {
			stats.Errors++
			emit(errorStream, model.GenError("classify", model.KindTransient, err,
				map[string]interface{}{"region": r.CropRect.String()},
				"region inference failed"))
			continue
		}
		if !ok {
			continue
		}
		dets = append(dets, ToFrame(d, r.CropRect, frame.Scaled))
	}
	return dets
}
