package mode

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/xerrors"

	"github.com/khaledhikmat/vs-track/model"
	"github.com/khaledhikmat/vs-track/pipeline"
	"github.com/khaledhikmat/vs-track/service/lgr"
)

var ErrShutdownTimeout = xerrors.New("pipeline did not stop in time")

// Run starts the pipeline for the configured camera and persists its stats
// and errors until canxCtx is cancelled or the pipeline fails.
func Run(canxCtx context.Context, svcs pipeline.ServicesFactory, opts ...pipeline.Option) error {
	// Stages never block on these so they are not closed on exit.
	errorStream := make(chan interface{}, 64)
	statsStream := make(chan interface{}, 64)

	camera := svcs.CfgSvc.GetCamera()
	opts = append(opts,
		pipeline.WithErrorStream(errorStream),
		pipeline.WithStatsStream(statsStream),
	)

	h, err := pipeline.Start(canxCtx, svcs, camera, opts...)
	if err != nil {
		procError(svcs.DataSvc, model.GenError("run", model.KindFatal, err,
			map[string]interface{}{"camera": camera.ID},
			"unable to start pipeline"))
		return err
	}

	lgr.Logger.Info("pipeline running",
		slog.String("runID", h.RunID),
		slog.String("camera", camera.Name),
	)

	for {
		select {
		case <-canxCtx.Done():
			lgr.Logger.Info(
				"run context cancelled",
			)
			goto resume

		case <-h.Done():
			lgr.Logger.Info(
				"pipeline exited on its own",
				slog.Any("error", h.Err()),
			)
			goto resume

		case s := <-statsStream:
			procStats(svcs.DataSvc, s)

		case e := <-errorStream:
			procError(svcs.DataSvc, e)
		}
	}

	// Keep consuming while the stages drain their queues
resume:
	h.Stop()

	period := time.Duration(svcs.CfgSvc.GetModeMaxShutdownTime()) * time.Second
	timer := time.NewTimer(period)
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			lgr.Logger.Info(
				"run shutdown waiting period expired. Exiting now",
				slog.Duration("period", period),
			)
			return ErrShutdownTimeout

		case <-h.Done():
			drain(svcs, statsStream, errorStream)
			return h.Err()

		case s := <-statsStream:
			procStats(svcs.DataSvc, s)

		case e := <-errorStream:
			procError(svcs.DataSvc, e)
		}
	}
}

// drain handles whatever the stages emitted just before they exited.
func drain(svcs pipeline.ServicesFactory, statsStream, errorStream chan interface{}) {
	for {
		select {
		case s := <-statsStream:
			procStats(svcs.DataSvc, s)
		case e := <-errorStream:
			procError(svcs.DataSvc, e)
		default:
			return
		}
	}
}
