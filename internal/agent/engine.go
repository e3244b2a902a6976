// Package agent runs lifecycle operations for registered applications and
// serves them over HTTP.
package agent

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/carlosprados/domino/internal/artifact"
	"github.com/carlosprados/domino/internal/events"
	"github.com/carlosprados/domino/internal/info"
	"github.com/carlosprados/domino/internal/lifecycle"
	"github.com/carlosprados/domino/internal/metrics"
	"github.com/carlosprados/domino/internal/registration"
	"github.com/carlosprados/domino/internal/state"
	"github.com/carlosprados/domino/internal/store"
)

const (
	opDeploy  = "deploy"
	opStart   = "start"
	opStop    = "stop"
	opRestart = "restart"

	publishTimeout = 5 * time.Second
)

// Registrations resolves app names.
type Registrations interface {
	App(name string) (*registration.App, error)
	Apps() []*registration.App
}

// Dispatcher returns the handler serving a registration.
type Dispatcher interface {
	Handler(app *registration.App) (lifecycle.Handler, error)
}

type HealthChecker interface {
	Poll(ctx context.Context, app *registration.App) lifecycle.Status
}

type InfoProber interface {
	Probe(ctx context.Context, app *registration.App) info.Report
}

// Tracker reports processes spawned by the agent.
type Tracker interface {
	Live(app string) (*lifecycle.ProcessHandle, bool)
}

// Options configure an Engine. Health, Info, Events and Processes are optional.
type Options struct {
	Registrations Registrations
	Handlers      Dispatcher
	Health        HealthChecker
	Info          InfoProber
	Events        events.Publisher
	Processes     Tracker
	StorageDir    string
	// StateDir keeps a snapshot of the app states; empty disables it.
	StateDir string
	// KeepVersions stored versions survive a filesystem deploy; 0 keeps all.
	KeepVersions int
}

// Engine is the single entry point for lifecycle operations. Calls for
// different apps run concurrently; callers serialize calls for the same app.
type Engine struct {
	opts   Options
	states *store.MemoryStore
	start  time.Time
	saveMu sync.Mutex
}

// NewEngine restores the last snapshot from StateDir, if any.
func NewEngine(opts Options) *Engine {
	if opts.Events == nil {
		opts.Events = events.Noop{}
	}
	e := &Engine{opts: opts, states: store.NewMemoryStore(), start: time.Now()}
	if opts.StateDir != "" {
		snap, err := state.Load(opts.StateDir)
		if err != nil {
			log.Warn().Str("dir", opts.StateDir).Err(err).Msg("ignoring unreadable state snapshot")
		}
		for _, st := range snap.Apps {
			st.PID = 0
			e.states.Upsert(st)
		}
		if len(snap.Apps) > 0 {
			log.Info().Int("apps", len(snap.Apps)).Time("saved", snap.Updated).Msg("restored app states")
		}
	}
	return e
}

func (e *Engine) persist() {
	if e.opts.StateDir == "" {
		return
	}
	e.saveMu.Lock()
	defer e.saveMu.Unlock()
	snap := state.Snapshot{Updated: time.Now().UTC(), Apps: e.states.List()}
	if err := state.Save(e.opts.StateDir, snap); err != nil {
		log.Warn().Str("dir", e.opts.StateDir).Err(err).Msg("saving state snapshot failed")
	}
}

func (e *Engine) resolve(name string) (*registration.App, lifecycle.Handler, error) {
	app, err := e.opts.Registrations.App(name)
	if err != nil {
		return nil, nil, err
	}
	h, err := e.opts.Handlers.Handler(app)
	if err != nil {
		return nil, nil, err
	}
	return app, h, nil
}

// Deploy installs version of the app. An empty version means the newest one
// available: "latest" for images, the highest stored version otherwise.
func (e *Engine) Deploy(ctx context.Context, name, version string) (lifecycle.Result, error) {
	app, h, err := e.resolve(name)
	if err != nil {
		return lifecycle.Result{}, err
	}
	began := time.Now()
	lg := log.With().Str("app", name).Str("operation", opDeploy).Logger()

	res, ok := e.resolveVersion(app, version, lg)
	if ok {
		lg.Info().Str("version", res.Version).Msg("deploying")
		res = h.Deploy(ctx, app, res.Version)
		if res.Status == lifecycle.Deployed && app.Source.Type == registration.SourceFilesystem && e.opts.KeepVersions > 0 {
			if err := artifact.Prune(e.opts.StorageDir, app.Name, e.opts.KeepVersions); err != nil {
				lg.Warn().Err(err).Msg("pruning stored versions failed")
			}
		}
	}
	e.record(ctx, app.Name, opDeploy, res.Status, res.Version, began)
	return res, nil
}

func (e *Engine) resolveVersion(app *registration.App, version string, lg zerolog.Logger) (lifecycle.Result, bool) {
	if version != "" {
		return lifecycle.Result{Version: version}, true
	}
	if app.Source.Type == registration.SourceDocker {
		return lifecycle.Result{Version: lifecycle.LatestVersion}, true
	}
	v, found, err := artifact.FindLatest(e.opts.StorageDir, app.Name)
	switch {
	case err != nil:
		lg.Error().Err(err).Msg("listing stored versions failed")
		return lifecycle.Result{Status: lifecycle.DeployFailedUnknown, Version: lifecycle.LatestVersion}, false
	case !found:
		lg.Error().Str("storage", e.opts.StorageDir).Msg("no stored version")
		return lifecycle.Result{Status: lifecycle.DeployFailedMissingVersion, Version: lifecycle.LatestVersion}, false
	}
	return lifecycle.Result{Version: v.Raw()}, true
}

// Start starts the app and, when the handler cannot confirm it, waits for
// its health check.
func (e *Engine) Start(ctx context.Context, name string) (lifecycle.Status, error) {
	return e.startLike(ctx, name, opStart, lifecycle.Handler.Start)
}

// Restart stops then starts the app, confirming health like Start.
func (e *Engine) Restart(ctx context.Context, name string) (lifecycle.Status, error) {
	return e.startLike(ctx, name, opRestart, lifecycle.Handler.Restart)
}

func (e *Engine) startLike(ctx context.Context, name, op string, call func(lifecycle.Handler, context.Context, *registration.App) lifecycle.Status) (lifecycle.Status, error) {
	app, h, err := e.resolve(name)
	if err != nil {
		return "", err
	}
	began := time.Now()
	st := call(h, ctx, app)
	if st == lifecycle.UnknownStarted && e.opts.Health != nil {
		st = e.opts.Health.Poll(ctx, app)
	}
	e.record(ctx, app.Name, op, st, "", began)
	return st, nil
}

func (e *Engine) Stop(ctx context.Context, name string) (lifecycle.Status, error) {
	app, h, err := e.resolve(name)
	if err != nil {
		return "", err
	}
	began := time.Now()
	st := h.Stop(ctx, app)
	e.record(ctx, app.Name, opStop, st, "", began)
	return st, nil
}

// Info queries the app's info endpoint.
func (e *Engine) Info(ctx context.Context, name string) (info.Report, error) {
	app, err := e.opts.Registrations.App(name)
	if err != nil {
		return info.Report{}, err
	}
	if e.opts.Info == nil {
		return info.Report{Status: info.NonConfigured}, nil
	}
	return e.opts.Info.Probe(ctx, app), nil
}

// Apps lists every registered app with its last known state.
func (e *Engine) Apps() []store.AppState {
	apps := e.opts.Registrations.Apps()
	out := make([]store.AppState, 0, len(apps))
	for _, a := range apps {
		st, ok := e.states.Get(a.Name)
		if !ok {
			st = store.AppState{Name: a.Name}
		}
		if e.opts.Processes != nil {
			if h, live := e.opts.Processes.Live(a.Name); live {
				st.PID = h.PID
			}
		}
		out = append(out, st)
	}
	return out
}

func (e *Engine) Uptime() time.Duration { return time.Since(e.start) }

func (e *Engine) record(ctx context.Context, app, op string, status lifecycle.Status, version string, began time.Time) {
	took := time.Since(began)
	ev := log.Info()
	if status.Failed() {
		ev = log.Warn()
	}
	ev.Str("app", app).Str("operation", op).Str("status", string(status)).Str("version", version).Dur("took", took).Msg("lifecycle operation finished")

	prev, _ := e.states.Get(app)
	metrics.ObserveOperation(app, op, string(status), took)
	metrics.SetStatus(app, prev.Status, string(status))

	cur := store.AppState{Name: app, Status: string(status), Operation: op}
	if op == opDeploy && status == lifecycle.Deployed {
		cur.Version = version
	}
	if e.opts.Processes != nil {
		if h, live := e.opts.Processes.Live(app); live {
			cur.PID = h.PID
		}
	}
	e.states.Upsert(cur)
	e.persist()

	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := e.opts.Events.Publish(pctx, events.NewEvent(app, op, string(status), version)); err != nil {
		log.Warn().Str("app", app).Err(err).Msg("publishing lifecycle event failed")
	}
}

// Trackers asks each tracker in turn.
type Trackers []Tracker

func (ts Trackers) Live(app string) (*lifecycle.ProcessHandle, bool) {
	for _, t := range ts {
		if h, ok := t.Live(app); ok {
			return h, true
		}
	}
	return nil, false
}
