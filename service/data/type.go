package data

import (
	"context"
	"time"

	"github.com/khaledhikmat/vs-track/model"
)

// DetectionRecord is one persisted completed track. BBox is the last
// frame-normalised position and Area its share of the frame.
type DetectionRecord struct {
	ID           int64      `json:"id"`
	Timestamp    time.Time  `json:"timestamp"`
	CameraID     string     `json:"cameraId"`
	TrackID      string     `json:"trackId"`
	Label        string     `json:"label"`
	Confidence   float32    `json:"confidence"`
	BBox         model.BBox `json:"bbox"`
	Area         float64    `json:"area"`
	Movement     string     `json:"movement"`
	MovementTag  string     `json:"movementTag"`
	Direction    string     `json:"direction"`
	SpeedLabel   string     `json:"speedLabel"`
	EntryZone    string     `json:"entryZone"`
	ExitZone     string     `json:"exitZone"`
	DurationSecs float64    `json:"durationSecs"`
	Hits         int        `json:"hits"`
	Thumbnail    []byte     `json:"-"`

	Verified            bool   `json:"verified"`
	VerifiedLabel       string `json:"verifiedLabel,omitempty"`
	VerifiedDescription string `json:"verifiedDescription,omitempty"`
}

// SceneEvent is one verified batch: the timeline sent for verification and
// what came back.
type SceneEvent struct {
	ID          int64     `json:"id"`
	CameraID    string    `json:"cameraId"`
	PeriodStart time.Time `json:"periodStart"`
	PeriodEnd   time.Time `json:"periodEnd"`
	Objects     int       `json:"objects"`
	CropsSent   int       `json:"cropsSent"`
	Timeline    string    `json:"timeline"`
	Provider    string    `json:"provider"`
	Narrative   string    `json:"narrative"`
	Verified    int       `json:"verified"`
	Unverified  int       `json:"unverified"`
}

// Query filters QueryDetections. Zero fields do not filter.
type Query struct {
	CameraID          string
	Label             string
	Since             time.Time
	Limit             int
	IncludeThumbnails bool
}

// DetectionStats summarises detections for a camera over a window.
type DetectionStats struct {
	Total   int64            `json:"total"`
	ByClass map[string]int64 `json:"byClass"`
	// ByHour is keyed by the two-digit local hour.
	ByHour map[string]int64 `json:"byHour"`
	// UniqueEvents30s counts distinct (30s bucket, label) pairs for people
	// and vehicles.
	UniqueEvents30s int64   `json:"uniqueEvents30s"`
	Verified        int64   `json:"verified"`
	ReductionPct    float64 `json:"reductionPct"`
}

type IService interface {
	InsertDetection(ctx context.Context, rec DetectionRecord) (int64, error)
	UpdateVerificationResult(ctx context.Context, id int64, label, description string) error
	QueryDetections(ctx context.Context, q Query) ([]DetectionRecord, error)
	Stats(ctx context.Context, cameraID string, since time.Time) (DetectionStats, error)

	InsertSceneEvent(ctx context.Context, ev SceneEvent) (int64, error)
	// QueryScenes returns scene events newest first; limit <= 0 means all.
	QueryScenes(ctx context.Context, cameraID string, since time.Time, limit int) ([]SceneEvent, error)

	NewError(err any) error
	NewStats(stats any) error

	Close() error
}
