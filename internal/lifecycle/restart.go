package lifecycle

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/carlosprados/domino/internal/registration"
)

// StartStopper is the part of a Handler a restart is composed of.
type StartStopper interface {
	Start(ctx context.Context, app *registration.App) Status
	Stop(ctx context.Context, app *registration.App) Status
}

// Sleep waits d or until ctx is done.
type Sleep func(ctx context.Context, d time.Duration) error

// SleepContext is the real Sleep.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Restarter stops then starts, waiting Cooldown in between so sockets held by
// the old instance are released. Start is only attempted when the stop did not
// fail.
type Restarter struct {
	Cooldown time.Duration
	Sleep    Sleep
}

func NewRestarter(cooldown time.Duration) Restarter {
	return Restarter{Cooldown: cooldown, Sleep: SleepContext}
}

func (r Restarter) Restart(ctx context.Context, h StartStopper, app *registration.App) Status {
	st := h.Stop(ctx, app)
	if st != Stopped && st != UnknownStopped {
		log.Warn().Str("app", app.Name).Str("status", string(st)).Msg("restart aborted: stop failed")
		return st
	}
	sleep := r.Sleep
	if sleep == nil {
		sleep = SleepContext
	}
	if err := sleep(ctx, r.Cooldown); err != nil {
		log.Warn().Str("app", app.Name).Err(err).Msg("restart cancelled during cool-down")
		return StartFailure
	}
	return h.Start(ctx, app)
}
