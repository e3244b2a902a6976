package handler

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/carlosprados/domino/internal/lifecycle"
	"github.com/carlosprados/domino/internal/osservice"
	"github.com/carlosprados/domino/internal/registration"
)

func serviceApp() *registration.App {
	return &registration.App{
		Name:      "proxy",
		Source:    registration.Source{Type: registration.SourceFilesystem, Home: "/opt/proxy", Resource: "proxy"},
		Execution: registration.Execution{Handler: registration.ModeService, CommandName: "edge-proxy"},
	}
}

func TestServiceLifecycle(t *testing.T) {
	a := &mockAdapter{}
	a.On("Do", "edge-proxy", osservice.ActionStart).Return(nil).Once()
	a.On("Do", "edge-proxy", osservice.ActionStop).Return(nil).Once()
	a.On("Do", "edge-proxy", osservice.ActionRestart).Return(nil).Once()
	h := NewService(&mockPlacer{}, staticIDs{}, a)

	ctx := context.Background()
	assert.Equal(t, lifecycle.UnknownStarted, h.Start(ctx, serviceApp()))
	assert.Equal(t, lifecycle.UnknownStopped, h.Stop(ctx, serviceApp()))
	assert.Equal(t, lifecycle.UnknownStarted, h.Restart(ctx, serviceApp()))
	a.AssertExpectations(t)
}

func TestServiceFailures(t *testing.T) {
	a := &mockAdapter{}
	a.On("Do", "proxy", osservice.ActionStart).Return(errors.New("exit status 5"))
	a.On("Do", "proxy", osservice.ActionStop).Return(errors.New("exit status 5"))
	a.On("Do", "proxy", osservice.ActionRestart).Return(errors.New("exit status 5"))
	h := NewService(&mockPlacer{}, staticIDs{}, a)

	app := serviceApp()
	app.Execution.CommandName = ""
	ctx := context.Background()
	assert.Equal(t, lifecycle.StartFailure, h.Start(ctx, app))
	assert.Equal(t, lifecycle.StopFailure, h.Stop(ctx, app))
	assert.Equal(t, lifecycle.StartFailure, h.Restart(ctx, app))
}
