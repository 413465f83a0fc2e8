package events

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggingPublish(t *testing.T) {
	var buf bytes.Buffer
	svc := &loggingService{logger: slog.New(slog.NewJSONHandler(&buf, nil))}

	require.NoError(t, svc.Publish(TopicDetection, map[string]any{
		"label":    "person",
		"trackId":  "abc",
		"duration": 1.5,
	}))

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "event", rec["msg"])
	assert.Equal(t, TopicDetection, rec["topic"])
	assert.Equal(t, "person", rec["label"])
	assert.Equal(t, 1.5, rec["duration"])

	assert.ErrorIs(t, svc.Publish("", nil), ErrNoTopic)
}
