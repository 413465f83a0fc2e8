package config

import "github.com/khaledhikmat/vs-track/model"

type MotionParameters struct {
	History      int     `toml:"bg_history"`
	VarThreshold float64 `toml:"bg_var_threshold"`
	MinArea      float64 `toml:"min_activity_area"`
	MaxArea      float64 `toml:"max_activity_area"`
	MaxOutputPx  int     `toml:"max_output_px"`
}

type ClassifierParameters struct {
	ModelPath           string  `toml:"model_path"`
	InputSize           int     `toml:"input_size"`
	ConfidenceThreshold float32 `toml:"confidence_threshold"`
	NMSThreshold        float32 `toml:"nms_threshold"`
	AccelHint           string  `toml:"accel_hint"`
	IntraThreads        int     `toml:"intra_threads"`
	// "region" runs inference per change region, "frame" on the whole frame.
	Scope string `toml:"scope"`
}

type TrackerParameters struct {
	IoUMatchThreshold float64 `toml:"iou_match_threshold"`
	MaxAgeFrames      int     `toml:"max_age_frames"`
	MinHits           int     `toml:"min_hits"`
	CropMaxPx         int     `toml:"crop_max_px"`
	CropsPerTrack     int     `toml:"crops_per_track"`
	Matcher           string  `toml:"matcher"`
}

type AggregatorParameters struct {
	FlushIntervalSecs int `toml:"flush_interval_secs"`
	MinCropsForLLM    int `toml:"min_crops_for_llm"`
	RingCapacity      int `toml:"ring_capacity"`
	MaxCropsPerBatch  int `toml:"max_crops_per_batch"`
}

type PipelineParameters struct {
	SamplingStride    int     `toml:"process_every_n_frames"`
	CaptureQueueSize  int     `toml:"capture_queue_size"`
	VerifyQueueSize   int     `toml:"verify_queue_size"`
	CooldownSecs      float64 `toml:"cooldown_seconds"`
	VerifyTimeoutSecs int     `toml:"verify_timeout_seconds"`
	StatsPeriodSecs   int     `toml:"stats_period_seconds"`
}

type IService interface {
	GetModeMaxShutdownTime() int
	GetCamera() model.Camera
	GetMotionParameters() MotionParameters
	GetClassifierParameters() ClassifierParameters
	GetTrackerParameters() TrackerParameters
	GetAggregatorParameters() AggregatorParameters
	GetPipelineParameters() PipelineParameters
	GetDatabasePath() string
	GetDetectionsLogFile() string
	GetReportWindowHours() int
}
