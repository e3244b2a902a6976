package handler

import (
	"context"
	"path/filepath"

	"github.com/carlosprados/domino/internal/lifecycle"
	"github.com/carlosprados/domino/internal/registration"
)

// Executable runs the deployed resource binary directly.
type Executable struct {
	fs        filesystem
	spawn     spawner
	restarter lifecycle.Restarter
}

func NewExecutable(placer Placer, ids Identities, procs Processes, restarter lifecycle.Restarter, hook SpawnHook) *Executable {
	return &Executable{
		fs:        filesystem{placer: placer, ids: ids},
		spawn:     newSpawner(procs, ids, hook),
		restarter: restarter,
	}
}

func (h *Executable) Deploy(_ context.Context, app *registration.App, version string) lifecycle.Result {
	return h.fs.deploy(app, version)
}

func (h *Executable) Start(_ context.Context, app *registration.App) lifecycle.Status {
	bin := filepath.Join(app.Source.Home, app.Source.Resource)
	return h.spawn.start(app, bin, app.Execution.Args)
}

func (h *Executable) Stop(ctx context.Context, app *registration.App) lifecycle.Status {
	return h.spawn.stop(ctx, app)
}

func (h *Executable) Restart(ctx context.Context, app *registration.App) lifecycle.Status {
	return h.restarter.Restart(ctx, h, app)
}

// Live reports the running process of app, if this handler launched one.
func (h *Executable) Live(app string) (*lifecycle.ProcessHandle, bool) {
	return h.spawn.Live(app)
}
