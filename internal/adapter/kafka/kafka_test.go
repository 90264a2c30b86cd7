package kafka

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/forecast-ingest/internal/config"
)

func TestSerializeToMessage(t *testing.T) {
	event := RunEvent{
		Domain:     "gfs025",
		Run:        "2024010100",
		Variables:  []string{"temperature_2m"},
		Duration:   90 * time.Second,
		FinishedAt: time.Date(2024, 1, 1, 5, 0, 0, 0, time.UTC),
	}

	msg, err := serializeToMessage(event)
	require.NoError(t, err)

	assert.Equal(t, []byte("gfs025-2024010100"), msg.Key)
	assert.JSONEq(t, `{
		"domain": "gfs025",
		"run": "2024010100",
		"variables": ["temperature_2m"],
		"duration_ns": 90000000000,
		"finished_at": "2024-01-01T05:00:00Z"
	}`, string(msg.Value))

	require.Len(t, msg.Headers, 2)
	assert.Equal(t, "domain", msg.Headers[0].Key)
	assert.Equal(t, []byte("gfs025"), msg.Headers[0].Value)
	assert.Equal(t, []byte("2024-01-01T05:00:00Z"), msg.Headers[1].Value)
}

func TestNewNotifierDisabledWithoutBrokers(t *testing.T) {
	n := NewNotifier(&config.Config{}, nil)
	assert.Nil(t, n)

	// A nil notifier is inert rather than a crash.
	n.Publish(context.Background(), RunEvent{Domain: "gfs025"})
	assert.NoError(t, n.Close())
}

func TestNewNotifierConfigured(t *testing.T) {
	cfg := &config.Config{
		KafkaBrokers: []string{"localhost:9092"},
		KafkaTopic:   "forecast-runs",
	}
	n := NewNotifier(cfg, nil)
	require.NotNil(t, n)
	assert.NoError(t, n.Close())
}
