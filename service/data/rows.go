package data

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/xerrors"

	"github.com/khaledhikmat/vs-track/model"
)

var tracer = otel.Tracer("github.com/khaledhikmat/vs-track/service/data")

// uniqueLabels are the classes counted by DetectionStats.UniqueEvents30s.
var uniqueLabels = []string{"person", "car", "truck"}

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

type errorRow struct {
	Timestamp  int64                  `json:"timestamp"`
	Processor  string                 `json:"processor"`
	Kind       string                 `json:"kind"`
	Inner      string                 `json:"innerError"`
	Message    string                 `json:"message"`
	StackTrace string                 `json:"stackTrace"`
	Misc       map[string]interface{} `json:"misc"`
}

func newErrorRow(err any) errorRow {
	row := errorRow{
		Timestamp:  time.Now().Unix(),
		Processor:  "N/A",
		Kind:       model.KindTransient.String(),
		StackTrace: "N/A",
	}

	var custom model.CustomError
	switch e := err.(type) {
	case model.CustomError:
		custom = e
	case *model.CustomError:
		custom = *e
	case error:
		if !errors.As(e, &custom) {
			row.Message = e.Error()
			row.Inner = e.Error()
			return row
		}
	default:
		row.Message = fmt.Sprint(err)
		return row
	}

	row.Processor = custom.Processor
	row.Kind = custom.Kind.String()
	row.Message = custom.Message
	row.StackTrace = custom.StackTrace
	row.Misc = custom.Misc
	if custom.Inner != nil {
		row.Inner = custom.Inner.Error()
	}
	return row
}

type statsRow struct {
	Timestamp int64
	Name      string
	Camera    string
	Payload   any
}

func newStatsRow(stats any) (statsRow, error) {
	now := time.Now().Unix()
	switch s := stats.(type) {
	case model.CaptureStats:
		s.Timestamp = now
		return statsRow{now, s.Name, s.Camera, s}, nil
	case model.ClassifierStats:
		s.Timestamp = now
		return statsRow{now, s.Name, s.Camera, s}, nil
	case model.VerifierStats:
		s.Timestamp = now
		return statsRow{now, s.Name, s.Camera, s}, nil
	default:
		return statsRow{}, xerrors.Errorf("unsupported stats type %T", stats)
	}
}

func reduction(total, verified int64) float64 {
	if total <= 0 {
		return 0
	}
	return math.Round((1-float64(verified)/float64(total))*1000) / 10
}

func hourKey(h int) string {
	return fmt.Sprintf("%02d", h)
}
