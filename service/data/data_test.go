package data

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khaledhikmat/vs-track/model"
)

func services(t *testing.T) map[string]IService {
	t.Helper()

	sq, err := NewSqlite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { sq.Close() })

	return map[string]IService{
		"sqlite": sq,
		"fake":   NewFake(),
	}
}

func record(cam, label string, ts time.Time) DetectionRecord {
	return DetectionRecord{
		Timestamp:    ts,
		CameraID:     cam,
		TrackID:      "t-" + label,
		Label:        label,
		Confidence:   0.75,
		BBox:         model.BBox{X1: 0.25, Y1: 0.5, X2: 0.5, Y2: 0.75},
		Area:         0.0625,
		Movement:     "moving right, centre→right, 2.0s",
		MovementTag:  "person_right_slow",
		Direction:    "right",
		SpeedLabel:   "slow",
		EntryZone:    "centre",
		ExitZone:     "right",
		DurationSecs: 2,
		Hits:         4,
		Thumbnail:    []byte{0xff, 0xd8, 0xff},
	}
}

func TestInsertQueryUpdate(t *testing.T) {
	ctx := context.Background()
	now := time.Now().Truncate(time.Second)

	for name, svc := range services(t) {
		t.Run(name, func(t *testing.T) {
			want := record("cam0", "person", now)
			id, err := svc.InsertDetection(ctx, want)
			require.NoError(t, err)
			assert.Positive(t, id)

			_, err = svc.InsertDetection(ctx, record("cam1", "car", now))
			require.NoError(t, err)

			got, err := svc.QueryDetections(ctx, Query{CameraID: "cam0", IncludeThumbnails: true})
			require.NoError(t, err)
			require.Len(t, got, 1)

			want.ID = id
			if diff := cmp.Diff(want, got[0], cmpopts.EquateApproxTime(time.Second)); diff != "" {
				t.Errorf("record mismatch (-want +got):\n%s", diff)
			}

			require.NoError(t, svc.UpdateVerificationResult(ctx, id, "person", "a person walking"))
			got, err = svc.QueryDetections(ctx, Query{CameraID: "cam0"})
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.True(t, got[0].Verified)
			assert.Equal(t, "a person walking", got[0].VerifiedDescription)
			assert.Nil(t, got[0].Thumbnail)

			err = svc.UpdateVerificationResult(ctx, 9999, "x", "y")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestSceneEvents(t *testing.T) {
	ctx := context.Background()
	start := time.Now().Add(-time.Minute).Truncate(time.Second)

	for name, svc := range services(t) {
		t.Run(name, func(t *testing.T) {
			old := SceneEvent{
				CameraID:    "cam0",
				PeriodStart: start.Add(-2 * time.Hour),
				PeriodEnd:   start.Add(-time.Hour),
				Objects:     1,
				CropsSent:   3,
				Timeline:    "old",
			}
			_, err := svc.InsertSceneEvent(ctx, old)
			require.NoError(t, err)

			want := SceneEvent{
				CameraID:    "cam0",
				PeriodStart: start,
				PeriodEnd:   start.Add(time.Minute),
				Objects:     2,
				CropsSent:   4,
				Timeline:    "[cam0] 12:00:01 person moving right",
				Provider:    "fake",
				Narrative:   "person seen on cam0",
				Verified:    1,
				Unverified:  1,
			}
			id, err := svc.InsertSceneEvent(ctx, want)
			require.NoError(t, err)
			want.ID = id

			_, err = svc.InsertSceneEvent(ctx, SceneEvent{CameraID: "cam1", PeriodStart: start, PeriodEnd: start, Timeline: "other"})
			require.NoError(t, err)

			got, err := svc.QueryScenes(ctx, "cam0", time.Time{}, 0)
			require.NoError(t, err)
			require.Len(t, got, 2)
			if diff := cmp.Diff(want, got[0], cmpopts.EquateApproxTime(time.Second)); diff != "" {
				t.Errorf("scene mismatch (-want +got):\n%s", diff)
			}
			assert.Equal(t, "old", got[1].Timeline)

			got, err = svc.QueryScenes(ctx, "cam0", start.Add(-30*time.Minute), 0)
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, id, got[0].ID)

			got, err = svc.QueryScenes(ctx, "", time.Time{}, 1)
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, "cam1", got[0].CameraID)
		})
	}
}

func TestQueryFilters(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	for name, svc := range services(t) {
		t.Run(name, func(t *testing.T) {
			for _, r := range []DetectionRecord{
				record("cam0", "person", now.Add(-3*time.Hour)),
				record("cam0", "person", now.Add(-time.Minute)),
				record("cam0", "dog", now),
			} {
				_, err := svc.InsertDetection(ctx, r)
				require.NoError(t, err)
			}

			got, err := svc.QueryDetections(ctx, Query{Since: now.Add(-time.Hour)})
			require.NoError(t, err)
			assert.Len(t, got, 2)
			assert.Equal(t, "dog", got[0].Label, "newest first")

			got, err = svc.QueryDetections(ctx, Query{Label: "person", Limit: 1})
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.WithinDuration(t, now.Add(-time.Minute), got[0].Timestamp, time.Second)
		})
	}
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	base := time.Now().Truncate(30 * time.Second)

	for name, svc := range services(t) {
		t.Run(name, func(t *testing.T) {
			ids := []int64{}
			for _, r := range []DetectionRecord{
				record("cam0", "person", base),
				record("cam0", "person", base.Add(time.Second)),
				record("cam0", "car", base.Add(2*time.Second)),
				record("cam0", "dog", base.Add(3*time.Second)),
				record("cam1", "person", base),
			} {
				id, err := svc.InsertDetection(ctx, r)
				require.NoError(t, err)
				ids = append(ids, id)
			}
			require.NoError(t, svc.UpdateVerificationResult(ctx, ids[0], "person", "walking"))

			st, err := svc.Stats(ctx, "cam0", base.Add(-time.Hour))
			require.NoError(t, err)

			assert.Equal(t, int64(4), st.Total)
			assert.Equal(t, int64(1), st.Verified)
			assert.Equal(t, map[string]int64{"person": 2, "car": 1, "dog": 1}, st.ByClass)
			assert.Equal(t, map[string]int64{hourKey(base.Local().Hour()): 4}, st.ByHour)
			assert.Equal(t, int64(2), st.UniqueEvents30s)
			assert.InDelta(t, 75.0, st.ReductionPct, 1e-9)

			empty, err := svc.Stats(ctx, "nobody", time.Time{})
			require.NoError(t, err)
			assert.Zero(t, empty.Total)
			assert.Zero(t, empty.ReductionPct)
		})
	}
}

func TestErrorsAndStats(t *testing.T) {
	for name, svc := range services(t) {
		t.Run(name, func(t *testing.T) {
			assert.NoError(t, svc.NewError(model.GenError("capture", model.KindFatal, errors.New("gone"), nil, "stream lost")))
			assert.NoError(t, svc.NewError(errors.New("plain")))
			assert.NoError(t, svc.NewStats(model.CaptureStats{Name: "capture", Camera: "cam0", Frames: 10}))
			assert.Error(t, svc.NewStats(struct{}{}))
		})
	}
}

func TestNewErrorRow(t *testing.T) {
	custom := model.GenError("verify", model.KindTransient, errors.New("timeout"), map[string]interface{}{"id": 3}, "verify %d", 3)

	row := newErrorRow(custom)
	assert.Equal(t, "verify", row.Processor)
	assert.Equal(t, "transient", row.Kind)
	assert.Equal(t, "timeout", row.Inner)
	assert.Equal(t, "verify 3", row.Message)

	row = newErrorRow(errors.New("boom"))
	assert.Equal(t, "N/A", row.Processor)
	assert.Equal(t, "boom", row.Message)

	row = newErrorRow("text")
	assert.Equal(t, "text", row.Message)
}

func TestReduction(t *testing.T) {
	assert.Zero(t, reduction(0, 0))
	assert.InDelta(t, 66.7, reduction(3, 1), 1e-9)
	assert.InDelta(t, 100.0, reduction(5, 0), 1e-9)
}
