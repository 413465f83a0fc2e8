package pipeline

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/khaledhikmat/vs-track/model"
	"github.com/khaledhikmat/vs-track/movement"
	"github.com/khaledhikmat/vs-track/scene"
	"github.com/khaledhikmat/vs-track/service/data"
	"github.com/khaledhikmat/vs-track/service/events"
	"github.com/khaledhikmat/vs-track/service/lgr"
	"github.com/khaledhikmat/vs-track/service/verifier"
)

const flushCheckPeriod = 250 * time.Millisecond

var tracer = otel.Tracer("github.com/khaledhikmat/vs-track/pipeline")

// alerter persists completed tracks, batches them into scenes and sends
// each scene's objects to the verifier.
type alerter struct {
	svcs          ServicesFactory
	camera        model.Camera
	agg           *scene.Aggregator
	minCrops      int
	maxCrops      int
	verifyTimeout time.Duration
	journal       io.Writer
	errorStream   chan interface{}
	stats         model.VerifierStats
}

type journalEntry struct {
	Camera     string       `json:"camera"`
	RecordID   int64        `json:"recordId"`
	TrackID    string       `json:"trackId"`
	Label      string       `json:"label"`
	Confidence float32      `json:"confidence"`
	Hits       int          `json:"hits"`
	Tag        string       `json:"tag"`
	Movement   string       `json:"movement"`
	FirstSeen  time.Time    `json:"firstSeen"`
	LastSeen   time.Time    `json:"lastSeen"`
	Positions  []model.BBox `json:"positions"`
	Crops      int          `json:"crops"`
}

func newAlerter(svcs ServicesFactory, camera model.Camera, journal io.Writer, errorStream chan interface{}) *alerter {
	ap := svcs.CfgSvc.GetAggregatorParameters()
	pp := svcs.CfgSvc.GetPipelineParameters()
	timeout := time.Duration(pp.VerifyTimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &alerter{
		svcs:          svcs,
		camera:        camera,
		agg:           scene.New(time.Duration(ap.FlushIntervalSecs)*time.Second, ap.RingCapacity, ap.MinCropsForLLM),
		minCrops:      ap.MinCropsForLLM,
		maxCrops:      ap.MaxCropsPerBatch,
		verifyTimeout: timeout,
		journal:       journal,
		errorStream:   errorStream,
		stats: model.VerifierStats{
			Name:   "verify",
			Camera: camera.Name,
		},
	}
}

// run consumes in until it is closed, then verifies what is left. Storage
// and verifier calls are not cancelled with canxCtx so the final drain can
// complete.
func (a *alerter) run(canxCtx context.Context, statsPeriod time.Duration, statsStream chan interface{}, in chan model.CompletedTrack) {
	ctx := context.WithoutCancel(canxCtx)

	var startTime = time.Now()
	snapshot := func() model.VerifierStats {
		s := a.stats
		s.Uptime = int64(time.Since(startTime).Seconds())
		return s
	}
	defer func() {
		emit(statsStream, snapshot())
	}()

	ticker := time.NewTicker(flushCheckPeriod)
	defer ticker.Stop()
	statsTicker := time.NewTicker(statsPeriod)
	defer statsTicker.Stop()

	for {
		select {
		case <-statsTicker.C:
			emit(statsStream, snapshot())

		case <-ticker.C:
			a.tick(ctx)

		case ct, ok := <-in:
			if !ok {
				if batch, ok := a.agg.ForceDrain(); ok {
					a.dispatch(ctx, batch)
				}
				lgr.Logger.Info("alerter input closed",
					slog.String("camera", a.camera.Name),
				)
				return
			}
			a.record(ctx, ct)
		}
	}
}

func (a *alerter) tick(ctx context.Context) {
	switch {
	case a.agg.ShouldFlush():
		if batch, ok := a.agg.Drain(); ok {
			a.dispatch(ctx, batch)
		}
	case a.agg.Due():
		if batch, ok := a.agg.Drain(); ok {
			a.discard(batch)
		}
	}
}

// record stores one completed track and queues it for the next scene.
func (a *alerter) record(ctx context.Context, ct model.CompletedTrack) {
	a.stats.Tracks++
	summary := movement.Analyse(ct)
	tag := movement.Tag(summary, ct.Class)
	thumb, _ := ct.BestCrop()

	var last model.BBox
	if len(ct.Positions) > 0 {
		last = ct.Positions[len(ct.Positions)-1]
	}

	id, err := a.svcs.DataSvc.InsertDetection(ctx, data.DetectionRecord{
		Timestamp:    ct.LastSeen,
		CameraID:     a.camera.ID,
		TrackID:      ct.ID,
		Label:        ct.Class.String(),
		Confidence:   ct.Confidence,
		BBox:         last,
		Area:         float64(last.Area()),
		Movement:     summary.Description,
		MovementTag:  tag,
		Direction:    summary.Direction,
		SpeedLabel:   summary.SpeedLabel,
		EntryZone:    summary.EntryZone,
		ExitZone:     summary.ExitZone,
		DurationSecs: summary.DurationSecs,
		Hits:         ct.Hits,
		Thumbnail:    thumb,
	})
	if err != nil {
		a.stats.Errors++
		emit(a.errorStream, model.GenError("verify", model.KindTransient, err,
			map[string]interface{}{"track": ct.ID},
			"unable to store detection"))
	}

	a.writeJournal(journalEntry{
		Camera:     a.camera.ID,
		RecordID:   id,
		TrackID:    ct.ID,
		Label:      ct.Class.String(),
		Confidence: ct.Confidence,
		Hits:       ct.Hits,
		Tag:        tag,
		Movement:   summary.Description,
		FirstSeen:  ct.FirstSeen,
		LastSeen:   ct.LastSeen,
		Positions:  ct.Positions,
		Crops:      len(ct.Crops),
	})

	a.publish(events.TopicDetection, map[string]any{
		"camera":     a.camera.ID,
		"recordId":   id,
		"trackId":    ct.ID,
		"label":      ct.Class.String(),
		"confidence": ct.Confidence,
		"movement":   summary.Description,
		"duration":   summary.DurationSecs,
	})

	if a.agg.Push(scene.Event{Track: ct, Movement: summary, RecordID: id, FinishedAt: ct.LastSeen}) {
		lgr.Logger.Warn("scene buffer full, oldest event evicted",
			slog.String("camera", a.camera.Name),
		)
	}
}

// dispatch sends a batch to the verifier, or discards it when it carries
// too few crops.
func (a *alerter) dispatch(ctx context.Context, batch scene.Batch) {
	if batch.Crops() < a.minCrops {
		a.discard(batch)
		return
	}

	a.stats.Batches++
	crops := batch.SelectCrops(a.minCrops, a.maxCrops)
	timeline := batch.Timeline(a.camera.ID)
	lgr.Logger.Debug("scene batch", slog.String("timeline", timeline))

	a.publish(events.TopicScene, map[string]any{
		"camera":      a.camera.ID,
		"periodStart": batch.PeriodStart.UTC().Format(time.RFC3339),
		"periodEnd":   batch.PeriodEnd.UTC().Format(time.RFC3339),
		"objects":     len(batch.Events),
		"crops":       len(crops),
		"timeline":    timeline,
	})

	// One verifier call per object with a crop, up to the crop budget.
	sev := data.SceneEvent{
		CameraID:    a.camera.ID,
		PeriodStart: batch.PeriodStart,
		PeriodEnd:   batch.PeriodEnd,
		Objects:     len(batch.Events),
		CropsSent:   len(crops),
		Timeline:    timeline,
		Provider:    a.svcs.VerifierSvc.Provider(),
	}
	var narrative []string
	budget := a.maxCrops
	for _, ev := range batch.Events {
		img, ok := ev.Track.BestCrop()
		if !ok || ev.RecordID == 0 || budget <= 0 {
			sev.Unverified++
			continue
		}
		budget--
		res, ok := a.verify(ctx, ev, img)
		if !ok {
			sev.Unverified++
			continue
		}
		sev.Verified++
		if res.Description != "" {
			narrative = append(narrative, res.Description)
		}
	}
	a.stats.Verified += sev.Verified
	a.stats.Unverified += sev.Unverified
	sev.Narrative = strings.Join(narrative, "\n")

	if _, err := a.svcs.DataSvc.InsertSceneEvent(ctx, sev); err != nil {
		a.stats.Errors++
		emit(a.errorStream, model.GenError("verify", model.KindTransient, err,
			map[string]interface{}{"objects": sev.Objects},
			"unable to store scene event"))
	}
}

func (a *alerter) discard(batch scene.Batch) {
	a.stats.Unverified += len(batch.Events)
	lgr.Logger.Debug("scene batch discarded",
		slog.String("reason", string(model.DropCropGate)),
		slog.Int("events", len(batch.Events)),
		slog.Int("crops", batch.Crops()),
	)
}

func (a *alerter) verify(ctx context.Context, ev scene.Event, img []byte) (verifier.Result, bool) {
	ctx, cancel := context.WithTimeout(ctx, a.verifyTimeout)
	defer cancel()
	ctx, span := tracer.Start(ctx, "pipeline.verify")
	span.SetAttributes(
		attribute.String("camera", a.camera.ID),
		attribute.String("label", ev.Track.Class.String()),
		attribute.Int64("recordId", ev.RecordID),
	)
	defer span.End()

	res, err := a.svcs.VerifierSvc.ClassifyObject(ctx, img, ev.Track.Class.String(), a.camera.ID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		a.stats.Errors++
		emit(a.errorStream, model.GenError("verify", model.KindTransient, err,
			map[string]interface{}{"recordId": ev.RecordID},
			"verification failed"))
		return res, false
	}

	if err := a.svcs.DataSvc.UpdateVerificationResult(ctx, ev.RecordID, res.Label, res.Description); err != nil {
		span.RecordError(err)
		a.stats.Errors++
		emit(a.errorStream, model.GenError("verify", model.KindTransient, err,
			map[string]interface{}{"recordId": ev.RecordID},
			"unable to store verification"))
		return res, false
	}

	a.publish(events.TopicVerification, map[string]any{
		"camera":      a.camera.ID,
		"recordId":    ev.RecordID,
		"label":       res.Label,
		"localLabel":  ev.Track.Class.String(),
		"description": res.Description,
	})
	return res, true
}

func (a *alerter) publish(topic string, payload map[string]any) {
	if a.svcs.EventsSvc == nil {
		return
	}
	if err := a.svcs.EventsSvc.Publish(topic, payload); err != nil {
		lgr.Logger.Warn("event publish failed",
			slog.String("topic", topic),
			slog.Any("error", err),
		)
	}
}

func (a *alerter) writeJournal(e journalEntry) {
	if a.journal == nil {
		return
	}
	b, err := json.Marshal(e)
	if err != nil {
		return
	}
	if _, err := a.journal.Write(append(b, '\n')); err != nil {
		lgr.Logger.Warn("detection journal write failed", slog.Any("error", err))
	}
}
