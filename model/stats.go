package model

type CaptureStats struct {
	Name          string `json:"name"`
	Camera        string `json:"camera"`
	FPS           int    `json:"fps"`
	Frames        int    `json:"frames"`
	SkippedFrames int    `json:"skippedFrames"`
	Regions       int    `json:"regions"`
	CooldownDrops int    `json:"cooldownDrops"`
	QueueDrops    int    `json:"queueDrops"`
	Reconnects    int    `json:"reconnects"`
	Errors        int    `json:"errors"`
	Uptime        int64  `json:"uptime"`
	Timestamp     int64  `json:"timestamp"`
}

type ClassifierStats struct {
	Name            string  `json:"name"`
	Camera          string  `json:"camera"`
	Frames          int     `json:"frames"`
	Detections      int     `json:"detections"`
	ActiveTracks    int     `json:"activeTracks"`
	TracksCompleted int     `json:"tracksCompleted"`
	QueueDrops      int     `json:"queueDrops"`
	NoiseDrops      int     `json:"noiseDrops"`
	Errors          int     `json:"errors"`
	AvgProcTime     float64 `json:"avgProcTime"`
	StdProcTime     float64 `json:"stdProcTime"`
	Uptime          int64   `json:"uptime"`
	Timestamp       int64   `json:"timestamp"`
}

type VerifierStats struct {
	Name       string `json:"name"`
	Camera     string `json:"camera"`
	Tracks     int    `json:"tracks"`
	Batches    int    `json:"batches"`
	Verified   int    `json:"verified"`
	Unverified int    `json:"unverified"`
	Errors     int    `json:"errors"`
	Uptime     int64  `json:"uptime"`
	Timestamp  int64  `json:"timestamp"`
}
