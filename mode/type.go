package mode

import (
	"context"
	"log/slog"

	"github.com/khaledhikmat/vs-track/model"
	"github.com/khaledhikmat/vs-track/pipeline"
	"github.com/khaledhikmat/vs-track/service/data"
	"github.com/khaledhikmat/vs-track/service/lgr"
)

type Processor func(canxCtx context.Context, svcs pipeline.ServicesFactory, opts ...pipeline.Option) error

func procStats(datasvc data.IService, stats interface{}) {
	switch stats := stats.(type) {
	case model.CaptureStats:
		lgr.Logger.Info("capture stats",
			slog.String("camera", stats.Camera),
			slog.Int("fps", stats.FPS),
			slog.Int("frames", stats.Frames),
			slog.Int("regions", stats.Regions),
			slog.Int("cooldownDrops", stats.CooldownDrops),
			slog.Int("queueDrops", stats.QueueDrops),
			slog.Int("reconnects", stats.Reconnects),
		)
		storeStats(datasvc, stats)
	case model.ClassifierStats:
		lgr.Logger.Info("classifier stats",
			slog.String("camera", stats.Camera),
			slog.Int("frames", stats.Frames),
			slog.Int("detections", stats.Detections),
			slog.Int("activeTracks", stats.ActiveTracks),
			slog.Int("tracksCompleted", stats.TracksCompleted),
			slog.Float64("avgProcTime", stats.AvgProcTime),
		)
		storeStats(datasvc, stats)
	case model.VerifierStats:
		lgr.Logger.Info("verifier stats",
			slog.String("camera", stats.Camera),
			slog.Int("tracks", stats.Tracks),
			slog.Int("batches", stats.Batches),
			slog.Int("verified", stats.Verified),
			slog.Int("unverified", stats.Unverified),
		)
		storeStats(datasvc, stats)
	default:
		lgr.Logger.Error(
			"unknown stats type",
			slog.Any("stats", stats),
		)
	}
}

func storeStats(datasvc data.IService, stats interface{}) {
	err := datasvc.NewStats(stats)
	if err != nil {
		lgr.Logger.Error(
			"failed to store stats",
			slog.Any("stats", stats),
			slog.Any("error", err),
		)
	}
}

func procError(datasvc data.IService, err interface{}) {
	if ce, ok := err.(model.CustomError); ok {
		lgr.Logger.Warn("pipeline error",
			slog.String("processor", ce.Processor),
			slog.String("kind", ce.Kind.String()),
			slog.String("message", ce.Message),
			slog.Any("error", ce.Inner),
		)
	}

	errTemp := datasvc.NewError(err)
	if errTemp != nil {
		lgr.Logger.Error(
			"failed to store error",
			slog.Any("error", errTemp),
		)
	}
}
