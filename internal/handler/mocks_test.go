package handler

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/carlosprados/domino/internal/artifact"
	"github.com/carlosprados/domino/internal/docker"
	"github.com/carlosprados/domino/internal/lifecycle"
	"github.com/carlosprados/domino/internal/osservice"
	"github.com/carlosprados/domino/internal/registration"
	"github.com/carlosprados/domino/internal/runner"
)

type mockPlacer struct{ mock.Mock }

func (m *mockPlacer) Place(t artifact.Target, v artifact.Version) (string, error) {
	args := m.Called(t, v.Raw())
	return args.String(0), args.Error(1)
}

type staticIDs struct {
	uid, gid int
	err      error
}

func (s staticIDs) UserID(string) (int, error)  { return s.uid, s.err }
func (s staticIDs) GroupID(string) (int, error) { return s.gid, s.err }

type mockProcs struct{ mock.Mock }

func (m *mockProcs) Spawn(opts runner.Options) (*lifecycle.ProcessHandle, error) {
	args := m.Called(opts)
	h, _ := args.Get(0).(*lifecycle.ProcessHandle)
	return h, args.Error(1)
}

func (m *mockProcs) Terminate(ctx context.Context, h *lifecycle.ProcessHandle, resource string) lifecycle.Status {
	return m.Called(h, resource).Get(0).(lifecycle.Status)
}

type mockEngine struct{ mock.Mock }

func (m *mockEngine) Execute(ctx context.Context, r *docker.Request) (*docker.Response, error) {
	args := m.Called(r.Command())
	resp, _ := args.Get(0).(*docker.Response)
	return resp, args.Error(1)
}

type mockAdapter struct{ mock.Mock }

func (m *mockAdapter) Name() string { return "mock" }

func (m *mockAdapter) Do(ctx context.Context, unit string, action osservice.Action) error {
	return m.Called(unit, action).Error(0)
}

type staticRuntimes map[string]*registration.Runtime

func (s staticRuntimes) Runtime(name string) (*registration.Runtime, error) {
	rt, ok := s[name]
	if !ok {
		return nil, registration.ErrRuntimeNotRegistered
	}
	return rt, nil
}

// immediate is a Restarter without cool-down.
var immediate = lifecycle.Restarter{Sleep: func(context.Context, time.Duration) error { return nil }}
