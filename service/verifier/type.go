package verifier

import "context"

// Result is the verifier's opinion of one crop.
type Result struct {
	Label       string `json:"label"`
	Description string `json:"description"`
}

// IService confirms or corrects a locally classified object from its image.
type IService interface {
	// Provider names the backend in stored scene events.
	Provider() string
	ClassifyObject(ctx context.Context, image []byte, localLabel, cameraID string) (Result, error)
}
