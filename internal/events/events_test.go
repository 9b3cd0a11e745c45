package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/docsdeploy/internal/config"
)

func TestRunEventJSONShape(t *testing.T) {
	ev := RunEvent{
		Type:   EventRunFinished,
		RunID:  "run-1",
		Branch: "master",
		Commit: "abc123",
		Status: "failed", FailedStep: "install",
		At: time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC),
	}
	data, err := json.Marshal(ev)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "run.finished", decoded["type"])
	assert.Equal(t, "install", decoded["failed_step"])
	assert.NotContains(t, decoded, "reason", "empty fields are omitted")
}

func TestNoopPublisher(t *testing.T) {
	var p Publisher = NoopPublisher{}
	assert.NoError(t, p.Publish(context.Background(), RunEvent{Type: EventRunStarted}))
	p.Close()
}

func TestNewNATSPublisherDisabled(t *testing.T) {
	_, err := NewNATSPublisher(config.EventsConfig{Enabled: false})
	require.Error(t, err)
}
