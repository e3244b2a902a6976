package events

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

type natsPublisher struct {
	nc      *nats.Conn
	subject string
}

func dialNATS(url, subject string) (*natsPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("domino"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn().Str("component", "events").Err(err).Msg("nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info().Str("component", "events").Str("url", c.ConnectedUrl()).Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	return &natsPublisher{nc: nc, subject: subject}, nil
}

func (p *natsPublisher) Publish(ctx context.Context, e Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := e.payload()
	if err != nil {
		return err
	}
	return p.nc.Publish(natsSubject(p.subject, e.App), b)
}

func (p *natsPublisher) Close() error {
	return p.nc.Drain()
}
