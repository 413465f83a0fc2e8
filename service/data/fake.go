package data

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"golang.org/x/xerrors"
)

// fakeService keeps everything in memory. Errors and stats are retained so
// tests can inspect them.
type fakeService struct {
	mu      sync.Mutex
	nextID  int64
	records []DetectionRecord
	scenes  []SceneEvent
	errors  []errorRow
	stats   []statsRow
}

func NewFake() IService {
	return &fakeService{}
}

func (svc *fakeService) InsertDetection(_ context.Context, rec DetectionRecord) (int64, error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	svc.nextID++
	rec.ID = svc.nextID
	rec.Thumbnail = slices.Clone(rec.Thumbnail)
	svc.records = append(svc.records, rec)
	return rec.ID, nil
}

func (svc *fakeService) UpdateVerificationResult(_ context.Context, id int64, label, description string) error {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	for i := range svc.records {
		if svc.records[i].ID == id {
			svc.records[i].Verified = true
			svc.records[i].VerifiedLabel = label
			svc.records[i].VerifiedDescription = description
			return nil
		}
	}
	return xerrors.Errorf("detection %d: %w", id, ErrNotFound)
}

func (q Query) matches(r DetectionRecord) bool {
	if q.CameraID != "" && r.CameraID != q.CameraID {
		return false
	}
	if q.Label != "" && r.Label != q.Label {
		return false
	}
	if !q.Since.IsZero() && r.Timestamp.Unix() < q.Since.Unix() {
		return false
	}
	return true
}

func (svc *fakeService) QueryDetections(_ context.Context, q Query) ([]DetectionRecord, error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	var out []DetectionRecord
	for i := len(svc.records) - 1; i >= 0; i-- {
		r := svc.records[i]
		if !q.matches(r) {
			continue
		}
		if !q.IncludeThumbnails {
			r.Thumbnail = nil
		}
		out = append(out, r)
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out, nil
}

func (svc *fakeService) Stats(_ context.Context, cameraID string, since time.Time) (DetectionStats, error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	st := DetectionStats{ByClass: map[string]int64{}, ByHour: map[string]int64{}}
	unique := map[string]struct{}{}
	q := Query{CameraID: cameraID, Since: since}
	for _, r := range svc.records {
		if !q.matches(r) {
			continue
		}
		st.Total++
		if r.Verified {
			st.Verified++
		}
		st.ByClass[r.Label]++
		st.ByHour[hourKey(r.Timestamp.Local().Hour())]++
		if slices.Contains(uniqueLabels, r.Label) {
			unique[fmt.Sprintf("%d_%s", r.Timestamp.Unix()/30, r.Label)] = struct{}{}
		}
	}
	st.UniqueEvents30s = int64(len(unique))
	st.ReductionPct = reduction(st.Total, st.Verified)
	return st, nil
}

func (svc *fakeService) InsertSceneEvent(_ context.Context, ev SceneEvent) (int64, error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	svc.nextID++
	ev.ID = svc.nextID
	svc.scenes = append(svc.scenes, ev)
	return ev.ID, nil
}

func (svc *fakeService) QueryScenes(_ context.Context, cameraID string, since time.Time, limit int) ([]SceneEvent, error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	var out []SceneEvent
	for i := len(svc.scenes) - 1; i >= 0; i-- {
		ev := svc.scenes[i]
		if cameraID != "" && ev.CameraID != cameraID {
			continue
		}
		if !since.IsZero() && ev.PeriodEnd.Unix() < since.Unix() {
			continue
		}
		out = append(out, ev)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (svc *fakeService) NewError(err any) error {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	svc.errors = append(svc.errors, newErrorRow(err))
	return nil
}

func (svc *fakeService) NewStats(stats any) error {
	row, err := newStatsRow(stats)
	if err != nil {
		return err
	}

	svc.mu.Lock()
	defer svc.mu.Unlock()

	svc.stats = append(svc.stats, row)
	return nil
}

func (svc *fakeService) Close() error {
	return nil
}
