package events

import (
	"context"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const mqttConnectTimeout = 10 * time.Second

type mqttPublisher struct {
	client  mqtt.Client
	subject string
}

func dialMQTT(url, subject string) (*mqttPublisher, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(url).
		SetClientID("domino-" + uuid.NewString()[:8]).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.Warn().Str("component", "events").Err(err).Msg("mqtt connection lost")
		})
	c := mqtt.NewClient(opts)
	tok := c.Connect()
	if !tok.WaitTimeout(mqttConnectTimeout) {
		return nil, fmt.Errorf("connect mqtt %s: timed out", url)
	}
	if err := tok.Error(); err != nil {
		return nil, fmt.Errorf("connect mqtt %s: %w", url, err)
	}
	return &mqttPublisher{client: c, subject: subject}, nil
}

func (p *mqttPublisher) Publish(ctx context.Context, e Event) error {
	b, err := e.payload()
	if err != nil {
		return err
	}
	tok := p.client.Publish(mqttTopic(p.subject, e.App), 1, false, b)
	select {
	case <-tok.Done():
		return tok.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *mqttPublisher) Close() error {
	p.client.Disconnect(250)
	return nil
}
