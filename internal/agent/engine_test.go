package agent

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/carlosprados/domino/internal/artifact"
	"github.com/carlosprados/domino/internal/events"
	"github.com/carlosprados/domino/internal/handler"
	"github.com/carlosprados/domino/internal/info"
	"github.com/carlosprados/domino/internal/lifecycle"
	"github.com/carlosprados/domino/internal/registration"
)

type mockHandler struct{ mock.Mock }

func (m *mockHandler) Deploy(ctx context.Context, app *registration.App, version string) lifecycle.Result {
	return m.Called(app.Name, version).Get(0).(lifecycle.Result)
}

func (m *mockHandler) Start(ctx context.Context, app *registration.App) lifecycle.Status {
	return m.Called(app.Name).Get(0).(lifecycle.Status)
}

func (m *mockHandler) Stop(ctx context.Context, app *registration.App) lifecycle.Status {
	return m.Called(app.Name).Get(0).(lifecycle.Status)
}

func (m *mockHandler) Restart(ctx context.Context, app *registration.App) lifecycle.Status {
	return m.Called(app.Name).Get(0).(lifecycle.Status)
}

type fixedHealth struct {
	status lifecycle.Status
	polls  int
}

func (f *fixedHealth) Poll(context.Context, *registration.App) lifecycle.Status {
	f.polls++
	return f.status
}

type fixedInfo struct{ report info.Report }

func (f fixedInfo) Probe(context.Context, *registration.App) info.Report { return f.report }

type recordingPublisher struct{ got []events.Event }

func (r *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	r.got = append(r.got, e)
	return nil
}

func (r *recordingPublisher) Close() error { return nil }

type fixture struct {
	engine  *Engine
	handler *mockHandler
	health  *fixedHealth
	events  *recordingPublisher
	storage string
}

func newFixture(t *testing.T, keep int) *fixture {
	t.Helper()
	apps := []*registration.App{
		{Name: "web", Source: registration.Source{Type: registration.SourceFilesystem, Home: t.TempDir(), Resource: "web.bin"}, Execution: registration.Execution{Handler: registration.ModeExecutable}},
		{Name: "cache", Source: registration.Source{Type: registration.SourceDocker, Home: "redis"}, Execution: registration.Execution{Handler: registration.ModeStandard}},
	}
	set, err := registration.NewSet(apps, nil)
	require.NoError(t, err)

	h := &mockHandler{}
	f := &fixture{handler: h, health: &fixedHealth{status: lifecycle.HealthCheckOK}, events: &recordingPublisher{}, storage: t.TempDir()}
	f.engine = NewEngine(Options{
		Registrations: set,
		Handlers:      handler.NewRegistry(handler.Handlers{Executable: h, Docker: h}),
		Health:        f.health,
		Info:          fixedInfo{report: info.Report{Status: info.Provided, Info: map[string]any{"version": "1"}}},
		Events:        f.events,
		StorageDir:    f.storage,
		KeepVersions:  keep,
	})
	return f
}

func (f *fixture) store(t *testing.T, versions ...string) {
	t.Helper()
	for _, v := range versions {
		p := filepath.Join(f.storage, artifact.Filename("web.bin", "web", v))
		require.NoError(t, os.WriteFile(p, []byte(v), 0o644))
	}
}

func TestDeployExplicitVersion(t *testing.T) {
	f := newFixture(t, 0)
	f.handler.On("Deploy", "web", "1.2.0").Return(lifecycle.Result{Status: lifecycle.Deployed, Version: "1.2.0"}).Once()

	res, err := f.engine.Deploy(context.Background(), "web", "1.2.0")
	require.NoError(t, err)
	assert.Equal(t, lifecycle.Result{Status: lifecycle.Deployed, Version: "1.2.0"}, res)
	f.handler.AssertExpectations(t)

	require.Len(t, f.events.got, 1)
	assert.Equal(t, "deploy", f.events.got[0].Operation)
	assert.Equal(t, "DEPLOYED", f.events.got[0].Status)

	apps := f.engine.Apps()
	require.Len(t, apps, 2)
	assert.Equal(t, "web", apps[0].Name)
	assert.Equal(t, "1.2.0", apps[0].Version)
	assert.Equal(t, "DEPLOYED", apps[0].Status)
	assert.Equal(t, "cache", apps[1].Name)
	assert.Empty(t, apps[1].Status)
}

func TestDeployLatestStored(t *testing.T) {
	f := newFixture(t, 0)
	f.store(t, "1.2.0", "1.10.0", "1.9.3")
	f.handler.On("Deploy", "web", "1.10.0").Return(lifecycle.Result{Status: lifecycle.Deployed, Version: "1.10.0"}).Once()

	res, err := f.engine.Deploy(context.Background(), "web", "")
	require.NoError(t, err)
	assert.Equal(t, "1.10.0", res.Version)
	f.handler.AssertExpectations(t)
}

func TestDeployLatestNothingStored(t *testing.T) {
	f := newFixture(t, 0)

	res, err := f.engine.Deploy(context.Background(), "web", "")
	require.NoError(t, err)
	assert.Equal(t, lifecycle.Result{Status: lifecycle.DeployFailedMissingVersion, Version: lifecycle.LatestVersion}, res)
	f.handler.AssertNotCalled(t, "Deploy", mock.Anything, mock.Anything)
}

func TestDeployLatestImage(t *testing.T) {
	f := newFixture(t, 0)
	f.handler.On("Deploy", "cache", "latest").Return(lifecycle.Result{Status: lifecycle.Deployed, Version: "latest"}).Once()

	res, err := f.engine.Deploy(context.Background(), "cache", "")
	require.NoError(t, err)
	assert.Equal(t, lifecycle.Deployed, res.Status)
	f.handler.AssertExpectations(t)
}

func TestDeployPrunesStorage(t *testing.T) {
	f := newFixture(t, 2)
	f.store(t, "1.0.0", "1.1.0", "1.2.0")
	f.handler.On("Deploy", "web", "1.2.0").Return(lifecycle.Result{Status: lifecycle.Deployed, Version: "1.2.0"}).Once()

	_, err := f.engine.Deploy(context.Background(), "web", "1.2.0")
	require.NoError(t, err)

	entries, err := os.ReadDir(f.storage)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
	_, err = os.Stat(filepath.Join(f.storage, artifact.Filename("web.bin", "web", "1.0.0")))
	assert.True(t, os.IsNotExist(err))
}

func TestStartPollsHealth(t *testing.T) {
	f := newFixture(t, 0)
	f.handler.On("Start", "web").Return(lifecycle.UnknownStarted).Once()

	st, err := f.engine.Start(context.Background(), "web")
	require.NoError(t, err)
	assert.Equal(t, lifecycle.HealthCheckOK, st)
	assert.Equal(t, 1, f.health.polls)
}

func TestStartFailureSkipsHealth(t *testing.T) {
	f := newFixture(t, 0)
	f.handler.On("Start", "web").Return(lifecycle.StartFailure).Once()

	st, err := f.engine.Start(context.Background(), "web")
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StartFailure, st)
	assert.Zero(t, f.health.polls)
}

func TestRestartPollsHealth(t *testing.T) {
	f := newFixture(t, 0)
	f.health.status = lifecycle.HealthCheckFailure
	f.handler.On("Restart", "cache").Return(lifecycle.UnknownStarted).Once()

	st, err := f.engine.Restart(context.Background(), "cache")
	require.NoError(t, err)
	assert.Equal(t, lifecycle.HealthCheckFailure, st)
}

func TestStop(t *testing.T) {
	f := newFixture(t, 0)
	f.handler.On("Stop", "web").Return(lifecycle.Stopped).Once()

	st, err := f.engine.Stop(context.Background(), "web")
	require.NoError(t, err)
	assert.Equal(t, lifecycle.Stopped, st)
	assert.Zero(t, f.health.polls)
}

func TestUnknownApp(t *testing.T) {
	f := newFixture(t, 0)

	_, err := f.engine.Start(context.Background(), "ghost")
	assert.ErrorIs(t, err, registration.ErrAppNotRegistered)
	_, err = f.engine.Deploy(context.Background(), "ghost", "1")
	assert.ErrorIs(t, err, registration.ErrAppNotRegistered)
	_, err = f.engine.Info(context.Background(), "ghost")
	assert.ErrorIs(t, err, registration.ErrAppNotRegistered)
	assert.Empty(t, f.events.got)
}

func TestInfo(t *testing.T) {
	f := newFixture(t, 0)
	rep, err := f.engine.Info(context.Background(), "web")
	require.NoError(t, err)
	assert.Equal(t, info.Provided, rep.Status)
}

func TestStateSurvivesRestart(t *testing.T) {
	f := newFixture(t, 0)
	dir := t.TempDir()
	f.engine.opts.StateDir = dir
	f.handler.On("Deploy", "web", "3.1.0").Return(lifecycle.Result{Status: lifecycle.Deployed, Version: "3.1.0"}).Once()

	_, err := f.engine.Deploy(context.Background(), "web", "3.1.0")
	require.NoError(t, err)

	again := NewEngine(Options{Registrations: f.engine.opts.Registrations, Handlers: f.engine.opts.Handlers, StateDir: dir})
	apps := again.Apps()
	require.Len(t, apps, 2)
	assert.Equal(t, "DEPLOYED", apps[0].Status)
	assert.Equal(t, "3.1.0", apps[0].Version)
}

type liveOnly map[string]int

func (l liveOnly) Live(app string) (*lifecycle.ProcessHandle, bool) {
	pid, ok := l[app]
	if !ok {
		return nil, false
	}
	return lifecycle.NewProcessHandle(pid, app, nil), true
}

func TestTrackers(t *testing.T) {
	ts := Trackers{liveOnly{"web": 10}, liveOnly{"api": 20}}
	h, ok := ts.Live("api")
	require.True(t, ok)
	assert.Equal(t, 20, h.PID)
	_, ok = ts.Live("db")
	assert.False(t, ok)
}
