package events

import (
	"log/slog"
	"sort"

	"golang.org/x/xerrors"

	"github.com/khaledhikmat/vs-track/service/lgr"
)

var ErrNoTopic = xerrors.New("event topic is required")

type loggingService struct {
	logger *slog.Logger
}

// NewLogging publishes events as structured log records.
func NewLogging() IService {
	return &loggingService{
		logger: lgr.Logger,
	}
}

func (svc *loggingService) Publish(topic string, payload map[string]any) error {
	if topic == "" {
		return ErrNoTopic
	}

	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	attrs := make([]any, 0, len(keys)+1)
	attrs = append(attrs, slog.String("topic", topic))
	for _, k := range keys {
		attrs = append(attrs, slog.Any(k, payload[k]))
	}

	svc.logger.Info("event", attrs...)
	return nil
}
