package config

import "github.com/khaledhikmat/vs-track/model"

type settings struct {
	ShutdownSecs  int                  `toml:"shutdown_seconds"`
	Camera        model.Camera         `toml:"camera"`
	Motion        MotionParameters     `toml:"motion"`
	Classifier    ClassifierParameters `toml:"detector"`
	Tracker       TrackerParameters    `toml:"tracker"`
	Aggregator    AggregatorParameters `toml:"scene"`
	Pipeline      PipelineParameters   `toml:"pipeline"`
	DatabasePath  string               `toml:"database_path"`
	DetectionsLog string               `toml:"detections_log"`
	ReportHours   int                  `toml:"report_window_hours"`
}

type hardcodedService struct {
	s settings
}

func NewHardCoded() IService {
	return &hardcodedService{s: defaults()}
}

func defaults() settings {
	return settings{
		ShutdownSecs: 5,
		Camera: model.Camera{
			ID:      "cam0",
			Name:    "cam0",
			RtspURL: "rtsp://127.0.0.1:8554/cam0",
		},
		Motion: MotionParameters{
			History:      500,
			VarThreshold: 40,
			MinArea:      1500,
			MaxArea:      200000,
			MaxOutputPx:  400,
		},
		Classifier: ClassifierParameters{
			ModelPath:           "./models/yolov8s.onnx",
			InputSize:           640,
			ConfidenceThreshold: 0.50,
			NMSThreshold:        0.45,
			AccelHint:           "cpu",
			IntraThreads:        2,
			Scope:               "region",
		},
		Tracker: TrackerParameters{
			IoUMatchThreshold: 0.30,
			MaxAgeFrames:      15,
			MinHits:           3,
			CropMaxPx:         400,
			CropsPerTrack:     3,
			Matcher:           "greedy",
		},
		Aggregator: AggregatorParameters{
			FlushIntervalSecs: 60,
			MinCropsForLLM:    3,
			RingCapacity:      100,
			MaxCropsPerBatch:  10,
		},
		Pipeline: PipelineParameters{
			SamplingStride:    4,
			CaptureQueueSize:  16,
			VerifyQueueSize:   8,
			CooldownSecs:      1,
			VerifyTimeoutSecs: 30,
			StatsPeriodSecs:   60,
		},
		DatabasePath:  "monitoring.db",
		DetectionsLog: "detections.log",
		ReportHours:   24,
	}
}

func (svc *hardcodedService) GetModeMaxShutdownTime() int {
	return svc.s.ShutdownSecs
}

func (svc *hardcodedService) GetCamera() model.Camera {
	return svc.s.Camera
}

func (svc *hardcodedService) GetMotionParameters() MotionParameters {
	return svc.s.Motion
}

func (svc *hardcodedService) GetClassifierParameters() ClassifierParameters {
	return svc.s.Classifier
}

func (svc *hardcodedService) GetTrackerParameters() TrackerParameters {
	return svc.s.Tracker
}

func (svc *hardcodedService) GetAggregatorParameters() AggregatorParameters {
	return svc.s.Aggregator
}

func (svc *hardcodedService) GetPipelineParameters() PipelineParameters {
	return svc.s.Pipeline
}

func (svc *hardcodedService) GetDatabasePath() string {
	return svc.s.DatabasePath
}

func (svc *hardcodedService) GetDetectionsLogFile() string {
	return svc.s.DetectionsLog
}

func (svc *hardcodedService) GetReportWindowHours() int {
	return svc.s.ReportHours
}
