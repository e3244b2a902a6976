package handler

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/carlosprados/domino/internal/lifecycle"
	"github.com/carlosprados/domino/internal/osservice"
	"github.com/carlosprados/domino/internal/registration"
)

// Service deploys like the other filesystem strategies and leaves running the
// application to the init system.
type Service struct {
	fs      filesystem
	adapter osservice.Adapter
}

func NewService(placer Placer, ids Identities, adapter osservice.Adapter) *Service {
	return &Service{fs: filesystem{placer: placer, ids: ids}, adapter: adapter}
}

func unit(app *registration.App) string {
	if app.Execution.CommandName != "" {
		return app.Execution.CommandName
	}
	return app.Name
}

func (h *Service) Deploy(_ context.Context, app *registration.App, version string) lifecycle.Result {
	return h.fs.deploy(app, version)
}

func (h *Service) Start(ctx context.Context, app *registration.App) lifecycle.Status {
	return h.do(ctx, app, osservice.ActionStart, lifecycle.UnknownStarted, lifecycle.StartFailure)
}

func (h *Service) Stop(ctx context.Context, app *registration.App) lifecycle.Status {
	return h.do(ctx, app, osservice.ActionStop, lifecycle.UnknownStopped, lifecycle.StopFailure)
}

// Restart is delegated to the init system as a single command.
func (h *Service) Restart(ctx context.Context, app *registration.App) lifecycle.Status {
	return h.do(ctx, app, osservice.ActionRestart, lifecycle.UnknownStarted, lifecycle.StartFailure)
}

func (h *Service) do(ctx context.Context, app *registration.App, action osservice.Action, ok, failed lifecycle.Status) lifecycle.Status {
	if err := h.adapter.Do(ctx, unit(app), action); err != nil {
		log.Error().Str("app", app.Name).Str("adapter", h.adapter.Name()).Str("action", string(action)).Err(err).Msg("service command failed")
		return failed
	}
	log.Info().Str("app", app.Name).Str("adapter", h.adapter.Name()).Str("action", string(action)).Msg("service command accepted")
	return ok
}
