package handler

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/carlosprados/domino/internal/lifecycle"
	"github.com/carlosprados/domino/internal/registration"
	"github.com/carlosprados/domino/internal/runner"
)

// SpawnHook is told about every process a handler spawns.
type SpawnHook func(app string, h *lifecycle.ProcessHandle)

// spawner keeps the processes of the apps one handler launched.
type spawner struct {
	book    *lifecycle.ProcessBook
	procs   Processes
	ids     Identities
	onSpawn SpawnHook
}

func newSpawner(procs Processes, ids Identities, hook SpawnHook) spawner {
	return spawner{book: lifecycle.NewProcessBook(), procs: procs, ids: ids, onSpawn: hook}
}

func (s spawner) start(app *registration.App, command string, args []string) lifecycle.Status {
	if h, ok := s.book.Live(app.Name); ok {
		log.Info().Str("app", app.Name).Int("pid", h.PID).Msg("already running")
		return lifecycle.UnknownStarted
	}
	uid, err := s.ids.UserID(app.Name)
	if err != nil {
		log.Error().Str("app", app.Name).Err(err).Msg("start failed: no executor identity")
		return lifecycle.StartFailure
	}
	gid, err := s.ids.GroupID(app.Name)
	if err != nil {
		log.Error().Str("app", app.Name).Err(err).Msg("start failed: no executor identity")
		return lifecycle.StartFailure
	}
	h, err := s.procs.Spawn(runner.Options{
		Name:       app.Name,
		Command:    command,
		Args:       args,
		WorkingDir: app.Source.Home,
		UID:        uid,
		GID:        gid,
	})
	if err != nil {
		log.Error().Str("app", app.Name).Err(err).Msg("start failed")
		return lifecycle.StartFailure
	}
	s.book.Put(app.Name, h)
	if s.onSpawn != nil {
		s.onSpawn(app.Name, h)
	}
	log.Info().Str("app", app.Name).Int("pid", h.PID).Msg("started")
	return lifecycle.UnknownStarted
}

// stop terminates the tracked process, or searches for one when none is
// tracked. A tracked process that already exited is forgotten.
func (s spawner) stop(ctx context.Context, app *registration.App) lifecycle.Status {
	h, ok := s.book.Get(app.Name)
	if ok && h.Exited() {
		s.book.Delete(app.Name)
		log.Info().Str("app", app.Name).Int("pid", h.PID).Msg("process had already exited")
		return lifecycle.Stopped
	}
	st := s.procs.Terminate(ctx, h, app.Source.Resource)
	if st == lifecycle.Stopped {
		s.book.Delete(app.Name)
	}
	log.Info().Str("app", app.Name).Str("status", string(st)).Msg("stop")
	return st
}

// Live returns the tracked process of app while it runs.
func (s spawner) Live(app string) (*lifecycle.ProcessHandle, bool) {
	return s.book.Live(app)
}
