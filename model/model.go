package model

import (
	"fmt"
	"runtime/debug"
)

// ErrorKind separates failures that end a camera pipeline from those that
// only cost one unit of work.
type ErrorKind int

const (
	KindTransient ErrorKind = iota
	KindFatal
)

func (k ErrorKind) String() string {
	switch k {
	case KindFatal:
		return "fatal"
	case KindTransient:
		return "transient"
	default:
		return "unknown"
	}
}

// DropReason names an intentional load-shedding decision. Drops are counted
// and logged but are never reported on the error stream.
type DropReason string

const (
	DropQueueFull DropReason = "queue_full"
	DropCooldown  DropReason = "cooldown"
	DropCropGate  DropReason = "crop_gate"
	DropNoise     DropReason = "min_hits"
)

type CustomError struct {
	Processor  string                 `json:"processor"`
	Kind       ErrorKind              `json:"kind"`
	Inner      error                  `json:"innerError"`
	Message    string                 `json:"message"`
	StackTrace string                 `json:"stackTrace"`
	Misc       map[string]interface{} `json:"misc"`
}

func (e CustomError) Error() string {
	if e.Inner == nil {
		return fmt.Sprintf("%s: %s", e.Processor, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Processor, e.Message, e.Inner)
}

func (e CustomError) Unwrap() error {
	return e.Inner
}

func GenError(proc string, kind ErrorKind, err error, misc map[string]interface{}, messagef string, args ...interface{}) CustomError {
	return CustomError{
		Processor:  proc,
		Kind:       kind,
		Inner:      err,
		Message:    fmt.Sprintf(messagef, args...),
		StackTrace: string(debug.Stack()),
		Misc:       misc,
	}
}

type Camera struct {
	ID      string `json:"id" toml:"camera_id"`
	Name    string `json:"name" toml:"name"`
	RtspURL string `json:"rtspUrl" toml:"url"`
}
