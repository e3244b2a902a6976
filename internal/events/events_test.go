package events

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransportFor(t *testing.T) {
	cases := map[string]transport{
		"":                      none,
		"nats://127.0.0.1:4222": natsTransport,
		"tcp://broker:1883":     mqttTransport,
		"MQTT://broker:1883":    mqttTransport,
		"ssl://broker:8883":     mqttTransport,
	}
	for raw, want := range cases {
		got, err := transportFor(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}

	_, err := transportFor("http://example.com")
	assert.Error(t, err)
}

func TestNewWithoutURL(t *testing.T) {
	p, err := New("", "domino.lifecycle")
	require.NoError(t, err)
	assert.IsType(t, Noop{}, p)
	assert.NoError(t, p.Publish(context.Background(), NewEvent("web", "start", "HEALTH_CHECK_OK", "")))
	assert.NoError(t, p.Close())
}

func TestNewEvent(t *testing.T) {
	e := NewEvent("web", "deploy", "DEPLOYED", "1.0.3")
	_, err := uuid.Parse(e.ID)
	require.NoError(t, err)
	assert.False(t, e.Time.IsZero())

	b, err := e.payload()
	require.NoError(t, err)
	var got map[string]any
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Equal(t, "DEPLOYED", got["status"])
	assert.Equal(t, "1.0.3", got["version"])
}

func TestTopics(t *testing.T) {
	assert.Equal(t, "domino.lifecycle.web", natsSubject("domino.lifecycle", "web"))
	assert.Equal(t, "domino/lifecycle/web", mqttTopic("domino.lifecycle", "web"))
}
