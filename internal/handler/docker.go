package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/carlosprados/domino/internal/docker"
	"github.com/carlosprados/domino/internal/lifecycle"
	"github.com/carlosprados/domino/internal/registration"
)

// Engine issues Docker Engine commands.
type Engine interface {
	Execute(ctx context.Context, r *docker.Request) (*docker.Response, error)
}

// Docker runs registrations as containers: deploy pulls the image and
// recreates the container, the lifecycle operations map to single engine
// commands.
type Docker struct {
	engine Engine
}

// identifier is implemented by engines that can report their version.
type identifier interface {
	Identify(ctx context.Context)
}

const identifyTimeout = 30 * time.Second

// NewDocker returns the handler and, when the engine supports it, probes the
// engine version in the background.
func NewDocker(engine Engine) *Docker {
	if id, ok := engine.(identifier); ok {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), identifyTimeout)
			defer cancel()
			id.Identify(ctx)
		}()
	}
	return &Docker{engine: engine}
}

func (h *Docker) Deploy(ctx context.Context, app *registration.App, version string) lifecycle.Result {
	tag := version
	if tag == "" {
		tag = lifecycle.LatestVersion
	}
	res := lifecycle.Result{Version: tag}
	lg := log.With().Str("app", app.Name).Str("image", docker.Image(app)).Str("tag", tag).Logger()

	resp, err := h.engine.Execute(ctx, docker.PullRequest(app, tag))
	switch {
	case err != nil:
		lg.Error().Err(err).Msg("pull failed")
		res.Status = lifecycle.DeployFailedUnknown
		return res
	case resp.StatusCode == http.StatusNotFound:
		lg.Warn().Str("message", resp.Message).Msg("image version not found")
		res.Status = lifecycle.DeployFailedMissingVersion
		return res
	case !resp.OK():
		lg.Error().Int("status", resp.StatusCode).Str("message", resp.Message).Msg("pull rejected")
		res.Status = lifecycle.DeployFailedUnknown
		return res
	case resp.StreamError != "":
		lg.Error().Str("message", resp.StreamError).Msg("pull failed")
		res.Status = lifecycle.DeployFailedUnknown
		if missingImage(resp.StreamError) {
			res.Status = lifecycle.DeployFailedMissingVersion
		}
		return res
	}

	h.removeOld(ctx, app)

	create, err := docker.CreateRequest(app, tag)
	if err != nil {
		lg.Error().Err(err).Msg("invalid container configuration")
		res.Status = lifecycle.DeployFailedUnknown
		return res
	}
	resp, err = h.engine.Execute(ctx, create)
	if err != nil || !resp.OK() {
		ev := lg.Error().Err(err)
		if resp != nil {
			ev = ev.Int("status", resp.StatusCode).Str("message", resp.Message)
		}
		ev.Msg("container creation failed")
		res.Status = lifecycle.DeployFailedUnknown
		return res
	}
	lg.Info().Msg("container created")
	res.Status = lifecycle.Deployed
	return res
}

// removeOld deletes the previous container. A missing container is the
// first deployment; other failures are logged and creation still proceeds.
func (h *Docker) removeOld(ctx context.Context, app *registration.App) {
	req, err := docker.LifecycleRequest(docker.Remove, app)
	if err != nil {
		return
	}
	resp, err := h.engine.Execute(ctx, req)
	switch {
	case err != nil:
		log.Warn().Str("app", app.Name).Err(err).Msg("could not remove previous container")
	case resp.StatusCode == http.StatusNotFound:
		log.Info().Str("app", app.Name).Msg("no previous container, first deployment")
	case !resp.OK():
		log.Warn().Str("app", app.Name).Int("status", resp.StatusCode).Str("message", resp.Message).Msg("could not remove previous container")
	}
}

func (h *Docker) Start(ctx context.Context, app *registration.App) lifecycle.Status {
	return h.run(ctx, app, docker.Start, lifecycle.UnknownStarted, lifecycle.StartFailure)
}

func (h *Docker) Stop(ctx context.Context, app *registration.App) lifecycle.Status {
	return h.run(ctx, app, docker.Stop, lifecycle.UnknownStopped, lifecycle.StopFailure)
}

func (h *Docker) Restart(ctx context.Context, app *registration.App) lifecycle.Status {
	return h.run(ctx, app, docker.Restart, lifecycle.UnknownStarted, lifecycle.StartFailure)
}

// run issues cmd; 2xx and 304 (already in the requested state) succeed.
func (h *Docker) run(ctx context.Context, app *registration.App, cmd docker.Command, ok, failed lifecycle.Status) lifecycle.Status {
	req, err := docker.LifecycleRequest(cmd, app)
	if err != nil {
		log.Error().Str("app", app.Name).Err(err).Send()
		return failed
	}
	resp, err := h.engine.Execute(ctx, req)
	if err != nil {
		log.Error().Str("app", app.Name).Str("command", cmd.String()).Err(err).Msg("container command failed")
		return failed
	}
	if !resp.OK() && resp.StatusCode != http.StatusNotModified {
		log.Error().Str("app", app.Name).Str("command", cmd.String()).Int("status", resp.StatusCode).Str("message", resp.Message).Msg("container command rejected")
		return failed
	}
	log.Info().Str("app", app.Name).Str("command", cmd.String()).Int("status", resp.StatusCode).Msg("container command accepted")
	return ok
}

func missingImage(msg string) bool {
	m := strings.ToLower(msg)
	return strings.Contains(m, "not found") || strings.Contains(m, "manifest unknown")
}
