// Package handler implements the deployment strategies and picks the one a
// registration needs.
package handler

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/carlosprados/domino/internal/artifact"
	"github.com/carlosprados/domino/internal/lifecycle"
	"github.com/carlosprados/domino/internal/registration"
	"github.com/carlosprados/domino/internal/runner"
)

// Placer puts stored artifacts in place.
type Placer interface {
	Place(t artifact.Target, v artifact.Version) (string, error)
}

// Identities resolves the account an application runs as.
type Identities interface {
	UserID(app string) (int, error)
	GroupID(app string) (int, error)
}

// Processes spawns and terminates OS processes.
type Processes interface {
	Spawn(opts runner.Options) (*lifecycle.ProcessHandle, error)
	Terminate(ctx context.Context, h *lifecycle.ProcessHandle, resource string) lifecycle.Status
}

// filesystem deploys by copying the stored artifact into the app home, owned
// by the app's executor.
type filesystem struct {
	placer Placer
	ids    Identities
}

func (f filesystem) deploy(app *registration.App, version string) lifecycle.Result {
	if version == "" {
		return lifecycle.Result{Status: lifecycle.DeployFailedMissingVersion, Version: lifecycle.LatestVersion}
	}
	res := lifecycle.Result{Version: version}
	uid, err := f.ids.UserID(app.Name)
	if err != nil {
		log.Error().Str("app", app.Name).Err(err).Msg("deploy failed: no executor identity")
		res.Status = lifecycle.DeployFailedUnknown
		return res
	}
	gid, err := f.ids.GroupID(app.Name)
	if err != nil {
		log.Error().Str("app", app.Name).Err(err).Msg("deploy failed: no executor identity")
		res.Status = lifecycle.DeployFailedUnknown
		return res
	}
	target := artifact.Target{App: app.Name, Home: app.Source.Home, Resource: app.Source.Resource, UID: uid, GID: gid}
	if _, err := f.placer.Place(target, artifact.ParseVersion(version)); err != nil {
		if errors.Is(err, artifact.ErrNotFound) {
			log.Warn().Str("app", app.Name).Str("version", version).Err(err).Msg("deploy failed: version not stored")
			res.Status = lifecycle.DeployFailedMissingVersion
			return res
		}
		log.Error().Str("app", app.Name).Str("version", version).Err(err).Msg("deploy failed")
		res.Status = lifecycle.DeployFailedUnknown
		return res
	}
	log.Info().Str("app", app.Name).Str("version", version).Msg("deployed")
	res.Status = lifecycle.Deployed
	return res
}
