package pipeline

import (
	"context"
	"log/slog"
	"runtime"
	"time"

	"github.com/khaledhikmat/vs-track/cooldown"
	"github.com/khaledhikmat/vs-track/model"
	"github.com/khaledhikmat/vs-track/motion"
	"github.com/khaledhikmat/vs-track/service/lgr"
	"github.com/khaledhikmat/vs-track/stream"
)

// framer owns the stream and the background model. It closes out when it
// returns.
func framer(canxCtx context.Context, svcs ServicesFactory, camera model.Camera, dial func(context.Context) (*stream.Source, error), errorStream chan interface{}, statsStream chan interface{}, out chan FrameData, fatal func(error)) {
	defer close(out)

	// gocv keeps per-thread state.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	pp := svcs.CfgSvc.GetPipelineParameters()
	mp := svcs.CfgSvc.GetMotionParameters()

	var startTime = time.Now()
	stats := model.CaptureStats{
		Name:   "capture",
		Camera: camera.Name,
	}
	snapshot := func(src *stream.Source) model.CaptureStats {
		s := stats
		if src != nil {
			st := src.Stats()
			s.Frames, s.SkippedFrames, s.Reconnects = st.Frames, st.Skipped, st.Reconnects
		}
		s.Uptime = int64(time.Since(startTime).Seconds())
		if s.Uptime > 0 {
			s.FPS = int(float64(s.Frames) / float64(s.Uptime))
		}
		return s
	}

	src, err := dial(canxCtx)
	if err != nil {
		if canxCtx.Err() == nil {
			fatal(err)
			emit(errorStream, model.GenError("capture", model.KindFatal, err,
				map[string]interface{}{"camera": camera.ID},
				"unable to open stream"))
		}
		emit(statsStream, snapshot(nil))
		return
	}
	defer src.Close()

	det := motion.New(mp.History, mp.VarThreshold, mp.MinArea, mp.MaxArea, mp.MaxOutputPx)
	defer det.Close()

	cd := cooldown.New(time.Duration(pp.CooldownSecs * float64(time.Second)))

	defer func() {
		emit(statsStream, snapshot(src))
	}()

	statsTicker := time.NewTicker(time.Duration(max(pp.StatsPeriodSecs, 1)) * time.Second)
	defer statsTicker.Stop()

	for {
		select {
		case <-canxCtx.Done():
			lgr.Logger.Info("framer context cancelled",
				slog.String("camera", camera.Name),
			)
			return
		case <-statsTicker.C:
			emit(statsStream, snapshot(src))
		default:
		}

		img, ok, err := src.NextFrame()
		if err != nil {
			stats.Errors++
			lgr.Logger.Warn("frame read failed, reconnecting",
				slog.String("camera", camera.Name),
				slog.Any("error", err),
			)
			if err := src.Reconnect(canxCtx); err != nil {
				if canxCtx.Err() == nil {
					fatal(err)
					emit(errorStream, model.GenError("capture", model.KindFatal, err,
						map[string]interface{}{"camera": camera.ID},
						"stream lost"))
				}
				return
			}
			continue
		}
		if !ok {
			continue
		}

		now := time.Now()
		regions, err := det.ProcessFrame(img)
		if err != nil {
			stats.Errors++
			img.Close()
			emit(errorStream, model.GenError("capture", model.KindTransient, err, nil, "change detection failed"))
			continue
		}

		kept := regions[:0]
		for _, r := range regions {
			if !cd.Allow(r.Area, now) {
				r.Crop.Close()
				stats.CooldownDrops++
				lgr.Logger.Debug("region dropped",
					slog.String("reason", string(model.DropCooldown)),
					slog.Float64("area", r.Area),
				)
				continue
			}
			kept = append(kept, r)
		}
		stats.Regions += len(kept)

		frame := FrameData{Regions: kept, Scaled: det.ScaledSize(), Timestamp: now}
		if len(kept) > 0 {
			frame.Mat = img
		} else {
			img.Close()
		}

		select {
		case out <- frame:
		default:
			frame.Close()
			stats.QueueDrops++
			lgr.Logger.Debug("capture queue full, dropping frame",
				slog.String("reason", string(model.DropQueueFull)),
				slog.String("camera", camera.Name),
			)
		}
	}
}
