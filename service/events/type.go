package events

const (
	TopicDetection    = "vision_detection"
	TopicVerification = "vision_verification"
	TopicScene        = "vision_scene"
)

// IService publishes pipeline events to whatever consumes them.
type IService interface {
	Publish(topic string, payload map[string]any) error
}
