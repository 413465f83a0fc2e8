// Package tracker keeps object identity across frames by box overlap.
package tracker

import (
	"time"

	"github.com/google/uuid"

	"github.com/khaledhikmat/vs-track/model"
)

// CropSource cuts a still image of a normalised box out of the current frame.
type CropSource interface {
	Crop(b model.BBox, maxPx int) ([]byte, bool)
}

type Config struct {
	IoUMatchThreshold float64
	MaxAgeFrames      int
	MinHits           int
	CropMaxPx         int
	CropsPerTrack     int
	Matcher           MatchingAlgorithm
}

type track struct {
	id         string
	class      model.ObjectClass
	confidence float32
	bbox       model.BBox
	positions  []model.BBox
	age        int
	hits       int
	frames     int
	crops      []model.CropSnapshot
	firstSeen  time.Time
	lastSeen   time.Time
}

// State is a read-only view of a live track.
type State struct {
	ID     string
	Class  model.ObjectClass
	BBox   model.BBox
	Age    int
	Hits   int
	Frames int
	Crops  int
}

// Tracker owns the live track set for one camera. It is not safe for
// concurrent use; the classify stage is its only caller.
type Tracker struct {
	cfg    Config
	tracks []*track
	noise  int
}

func New(cfg Config) *Tracker {
	if cfg.Matcher == "" {
		cfg.Matcher = MatchGreedy
	}
	return &Tracker{cfg: cfg}
}

func (t *Tracker) Len() int {
	return len(t.tracks)
}

// NoiseDrops counts tracks retired with fewer than MinHits hits since New.
func (t *Tracker) NoiseDrops() int {
	return t.noise
}

func (t *Tracker) Snapshot() []State {
	out := make([]State, len(t.tracks))
	for i, tr := range t.tracks {
		out[i] = State{
			ID:     tr.id,
			Class:  tr.class,
			BBox:   tr.bbox,
			Age:    tr.age,
			Hits:   tr.hits,
			Frames: tr.frames,
			Crops:  len(tr.crops),
		}
	}
	return out
}

// Update advances the state machine by one frame and returns the tracks
// retired with enough hits. frame may be nil when no image is available.
func (t *Tracker) Update(dets []model.Detection, frame CropSource, now time.Time) []model.CompletedTrack {
	existing := len(t.tracks)

	iou := make([][]float64, existing)
	for ti, tr := range t.tracks {
		iou[ti] = make([]float64, len(dets))
		for di, d := range dets {
			iou[ti][di] = tr.bbox.IoU(d.BBox)
		}
	}

	var matches []pair
	if existing > 0 && len(dets) > 0 {
		switch t.cfg.Matcher {
		case MatchHungarian:
			matches = hungarianMatch(iou, t.cfg.IoUMatchThreshold)
		default:
			matches = greedyMatch(iou, t.cfg.IoUMatchThreshold)
		}
	}

	matchedTracks := make([]bool, existing)
	matchedDets := make([]bool, len(dets))
	for _, m := range matches {
		matchedTracks[m.track] = true
		matchedDets[m.det] = true
		t.tracks[m.track].update(dets[m.det], frame, now, t.cfg)
	}

	for di, d := range dets {
		if matchedDets[di] {
			continue
		}
		t.tracks = append(t.tracks, t.newTrack(d, frame, now))
	}

	var completed []model.CompletedTrack
	live := t.tracks[:0]
	for i, tr := range t.tracks {
		if i < existing && !matchedTracks[i] {
			tr.age++
			tr.frames++
		}
		if tr.age > t.cfg.MaxAgeFrames {
			if tr.hits >= t.cfg.MinHits {
				completed = append(completed, tr.complete())
			} else {
				t.noise++
			}
			continue
		}
		live = append(live, tr)
	}
	for i := len(live); i < len(t.tracks); i++ {
		t.tracks[i] = nil
	}
	t.tracks = live

	return completed
}

// Flush retires every live track regardless of age, for shutdown.
func (t *Tracker) Flush() []model.CompletedTrack {
	var completed []model.CompletedTrack
	for _, tr := range t.tracks {
		if tr.hits >= t.cfg.MinHits {
			completed = append(completed, tr.complete())
		} else {
			t.noise++
		}
	}
	t.tracks = nil
	return completed
}

func (t *Tracker) newTrack(d model.Detection, frame CropSource, now time.Time) *track {
	tr := &track{
		id:         uuid.NewString(),
		class:      d.Class,
		confidence: d.Confidence,
		bbox:       d.BBox,
		positions:  []model.BBox{d.BBox},
		hits:       1,
		frames:     1,
		firstSeen:  now,
		lastSeen:   now,
	}
	tr.addCrop(frame, now, t.cfg)
	return tr
}

func (tr *track) update(d model.Detection, frame CropSource, now time.Time, cfg Config) {
	tr.bbox = d.BBox
	tr.positions = append(tr.positions, d.BBox)
	tr.age = 0
	tr.hits++
	tr.frames++
	tr.lastSeen = now

	if d.Confidence > tr.confidence {
		tr.confidence = d.Confidence
		tr.class = d.Class
	}

	tr.addCrop(frame, now, cfg)
}

func (tr *track) addCrop(frame CropSource, now time.Time, cfg Config) {
	if frame == nil || len(tr.crops) >= cfg.CropsPerTrack {
		return
	}
	if b, ok := frame.Crop(tr.bbox, cfg.CropMaxPx); ok {
		tr.crops = append(tr.crops, model.CropSnapshot{JPEG: b, Timestamp: now})
	}
}

func (tr *track) complete() model.CompletedTrack {
	return model.CompletedTrack{
		ID:         tr.id,
		Class:      tr.class,
		Confidence: tr.confidence,
		Crops:      tr.crops,
		Positions:  tr.positions,
		FirstSeen:  tr.firstSeen,
		LastSeen:   tr.lastSeen,
		Hits:       tr.hits,
	}
}
