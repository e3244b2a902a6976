package handler

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/carlosprados/domino/internal/lifecycle"
	"github.com/carlosprados/domino/internal/registration"
)

// Runtimes looks up runtime registrations.
type Runtimes interface {
	Runtime(name string) (*registration.Runtime, error)
}

// Runtime launches the deployed resource through a registered runtime, such
// as java -jar app.jar.
type Runtime struct {
	fs        filesystem
	spawn     spawner
	runtimes  Runtimes
	restarter lifecycle.Restarter
}

func NewRuntime(placer Placer, ids Identities, procs Processes, runtimes Runtimes, restarter lifecycle.Restarter, hook SpawnHook) *Runtime {
	return &Runtime{
		fs:        filesystem{placer: placer, ids: ids},
		spawn:     newSpawner(procs, ids, hook),
		runtimes:  runtimes,
		restarter: restarter,
	}
}

// Verify checks that app names a registered runtime.
func (h *Runtime) Verify(app *registration.App) error {
	_, err := h.runtime(app)
	return err
}

func (h *Runtime) runtime(app *registration.App) (*registration.Runtime, error) {
	if app.Runtime == "" {
		return nil, fmt.Errorf("app %s: %w: none declared", app.Name, registration.ErrRuntimeNotRegistered)
	}
	rt, err := h.runtimes.Runtime(app.Runtime)
	if err != nil {
		return nil, fmt.Errorf("app %s: %w", app.Name, err)
	}
	return rt, nil
}

// Argv returns the launcher arguments: the registration args, the runtime's
// resource marker, then the resource path.
func (h *Runtime) Argv(app *registration.App, rt *registration.Runtime) []string {
	argv := append([]string(nil), app.Execution.Args...)
	if rt.ResourceMarker != "" {
		argv = append(argv, rt.ResourceMarker)
	}
	return append(argv, filepath.Join(app.Source.Home, app.Source.Resource))
}

func (h *Runtime) Deploy(_ context.Context, app *registration.App, version string) lifecycle.Result {
	return h.fs.deploy(app, version)
}

func (h *Runtime) Start(_ context.Context, app *registration.App) lifecycle.Status {
	rt, err := h.runtime(app)
	if err != nil {
		log.Error().Str("app", app.Name).Err(err).Msg("start failed")
		return lifecycle.StartFailure
	}
	return h.spawn.start(app, rt.Binary, h.Argv(app, rt))
}

func (h *Runtime) Stop(ctx context.Context, app *registration.App) lifecycle.Status {
	return h.spawn.stop(ctx, app)
}

func (h *Runtime) Restart(ctx context.Context, app *registration.App) lifecycle.Status {
	return h.restarter.Restart(ctx, h, app)
}

func (h *Runtime) Live(app string) (*lifecycle.ProcessHandle, bool) {
	return h.spawn.Live(app)
}
