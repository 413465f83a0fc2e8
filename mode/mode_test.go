package mode

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/khaledhikmat/vs-track/model"
	"github.com/khaledhikmat/vs-track/pipeline"
	"github.com/khaledhikmat/vs-track/service/config"
	"github.com/khaledhikmat/vs-track/service/data"
	"github.com/khaledhikmat/vs-track/service/verifier"
	"github.com/khaledhikmat/vs-track/stream"
)

type noopClassifier struct{}

func (noopClassifier) Detect(gocv.Mat) ([]model.Detection, error) { return nil, nil }

func (noopClassifier) DetectTop1(gocv.Mat) (model.Detection, bool, error) {
	return model.Detection{}, false, nil
}

func (noopClassifier) Latency() (float64, float64) { return 0, 0 }

func (noopClassifier) Close() error { return nil }

type noJournal struct {
	config.IService
}

func (noJournal) GetDetectionsLogFile() string { return "" }

func services() pipeline.ServicesFactory {
	return pipeline.ServicesFactory{
		CfgSvc:      noJournal{config.NewHardCoded()},
		DataSvc:     data.NewFake(),
		VerifierSvc: verifier.NewFake(),
	}
}

func TestRunReturnsPipelineFailure(t *testing.T) {
	err := Run(context.Background(), services(),
		pipeline.WithClassifier(noopClassifier{}),
		pipeline.WithStreamOptions(
			stream.WithOpener(func(string) (stream.Reader, error) { return nil, assert.AnError }),
			stream.WithSleeper(func(context.Context, time.Duration) error { return nil }),
		),
	)
	assert.ErrorIs(t, err, stream.ErrExhausted)
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, services(),
			pipeline.WithClassifier(noopClassifier{}),
			pipeline.WithStreamOptions(
				stream.WithOpener(func(string) (stream.Reader, error) { return nil, assert.AnError }),
			),
		)
	}()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return after cancel")
	}
}

func TestProcStatsStoresKnownTypes(t *testing.T) {
	svc := data.NewFake()
	procStats(svc, model.CaptureStats{Name: "capture"})
	procStats(svc, model.ClassifierStats{Name: "classify"})
	procStats(svc, model.VerifierStats{Name: "verify"})
	procStats(svc, "bogus")
	procError(svc, model.GenError("verify", model.KindTransient, assert.AnError, nil, "boom"))
}

func TestWriteReport(t *testing.T) {
	color.NoColor = true
	ctx := context.Background()
	svc := data.NewFake()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.Local)

	for i, label := range []string{"person", "person", "car"} {
		id, err := svc.InsertDetection(ctx, data.DetectionRecord{
			Timestamp: now.Add(-time.Duration(i) * time.Minute),
			CameraID:  "cam0",
			TrackID:   label,
			Label:     label,
			Movement:  "moving right",
		})
		require.NoError(t, err)
		if i == 0 {
			require.NoError(t, svc.UpdateVerificationResult(ctx, id, "person", "a person"))
		}
	}
	// Outside the window.
	_, err := svc.InsertDetection(ctx, data.DetectionRecord{Timestamp: now.Add(-48 * time.Hour), CameraID: "cam0", Label: "dog"})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, writeReport(ctx, &buf, svc, "cam0", 24, now))

	out := buf.String()
	assert.Contains(t, out, "Detections for cam0, last 24h")
	assert.Contains(t, out, "total:          3")
	assert.Contains(t, out, "verified:       1")
	assert.Contains(t, out, "reduction:      66.7%")
	assert.Contains(t, out, "person        2")
	assert.Contains(t, out, "11:00")
	assert.NotContains(t, out, "dog")
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("person")), bytes.Index(buf.Bytes(), []byte("car")))
}

func TestSortedKeys(t *testing.T) {
	m := map[string]int64{"b": 1, "a": 1, "c": 5}
	assert.Equal(t, []string{"c", "a", "b"}, sortedKeys(m, true))
	assert.Equal(t, []string{"a", "b", "c"}, sortedKeys(m, false))
}
