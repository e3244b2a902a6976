// Package events publishes lifecycle outcomes to a message broker.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Event is one finished lifecycle operation.
type Event struct {
	ID        string    `json:"id"`
	App       string    `json:"app"`
	Operation string    `json:"operation"`
	Status    string    `json:"status"`
	Version   string    `json:"version,omitempty"`
	Time      time.Time `json:"time"`
}

// NewEvent stamps a fresh id and the current time.
func NewEvent(app, operation, status, version string) Event {
	return Event{
		ID:        uuid.NewString(),
		App:       app,
		Operation: operation,
		Status:    status,
		Version:   version,
		Time:      time.Now().UTC(),
	}
}

func (e Event) payload() ([]byte, error) { return json.Marshal(e) }

// Publisher delivers events. Publish must not block longer than ctx allows.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Noop drops every event.
type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }
func (Noop) Close() error                         { return nil }

type transport int

const (
	none transport = iota
	natsTransport
	mqttTransport
)

func transportFor(raw string) (transport, error) {
	if raw == "" {
		return none, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return none, fmt.Errorf("events url: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "nats", "tls":
		return natsTransport, nil
	case "tcp", "mqtt", "ssl", "mqtts", "ws", "wss":
		return mqttTransport, nil
	default:
		return none, fmt.Errorf("events url %q: unsupported scheme %q", raw, u.Scheme)
	}
}

// New connects a publisher for rawURL. An empty URL gives a Noop publisher.
// Events go to subject.<app> on NATS and to subject/<app> (dots as
// separators) on MQTT.
func New(rawURL, subject string) (Publisher, error) {
	t, err := transportFor(rawURL)
	if err != nil {
		return nil, err
	}
	switch t {
	case natsTransport:
		return dialNATS(rawURL, subject)
	case mqttTransport:
		return dialMQTT(rawURL, subject)
	default:
		return Noop{}, nil
	}
}

func natsSubject(subject, app string) string { return subject + "." + app }

func mqttTopic(subject, app string) string {
	return strings.ReplaceAll(subject, ".", "/") + "/" + app
}
