// Package healthcheck confirms that a started application is serving.
package healthcheck

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/carlosprados/domino/internal/lifecycle"
	"github.com/carlosprados/domino/internal/registration"
)

// AttemptFunc observes the outcome of every probe.
type AttemptFunc func(app string, healthy bool)

// Poller probes a registration's health endpoint until it answers 200 or the
// attempt budget runs out.
type Poller struct {
	client    *http.Client
	onAttempt AttemptFunc
}

func New(onAttempt AttemptFunc) *Poller {
	return &Poller{client: &http.Client{}, onAttempt: onAttempt}
}

// Poll waits one delay before every attempt. It returns UnknownStarted when
// checks are disabled or ctx ends first.
func (p *Poller) Poll(ctx context.Context, app *registration.App) lifecycle.Status {
	hc := app.HealthCheck
	if !hc.Enabled {
		return lifecycle.UnknownStarted
	}
	delay := hc.Delay
	if delay <= 0 {
		delay = registration.DefaultHealthDelay
	}
	remaining := hc.MaxAttempts
	if remaining <= 0 {
		remaining = registration.DefaultHealthMaxAttempts
	}

	lg := log.With().Str("app", app.Name).Str("endpoint", hc.Endpoint).Logger()
	ticker := time.NewTicker(delay)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			lg.Warn().Err(ctx.Err()).Msg("health check abandoned")
			return lifecycle.UnknownStarted
		case <-ticker.C:
		}
		code, err := p.probe(ctx, hc)
		healthy := err == nil && code == http.StatusOK
		if p.onAttempt != nil {
			p.onAttempt(app.Name, healthy)
		}
		if healthy {
			lg.Info().Msg("health check passed")
			return lifecycle.HealthCheckOK
		}
		remaining--
		lg.Warn().Int("status", code).Err(err).Int("remaining", remaining).Msg("health check attempt failed")
		if remaining <= 0 {
			return lifecycle.HealthCheckFailure
		}
	}
}

func (p *Poller) probe(ctx context.Context, hc registration.HealthCheck) (int, error) {
	timeout := hc.Timeout
	if timeout <= 0 {
		timeout = registration.DefaultHealthTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, hc.Endpoint, nil)
	if err != nil {
		return 0, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
	return resp.StatusCode, nil
}
