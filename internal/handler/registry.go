package handler

import (
	"errors"
	"fmt"

	"github.com/carlosprados/domino/internal/lifecycle"
	"github.com/carlosprados/domino/internal/registration"
)

// UnsupportedDeploymentModeError reports a (source, mode) pair no handler serves.
type UnsupportedDeploymentModeError struct {
	App    string
	Source string
	Mode   string
}

func (e *UnsupportedDeploymentModeError) Error() string {
	return fmt.Sprintf("app %s: unsupported deployment mode source=%s execution=%s", e.App, e.Source, e.Mode)
}

type key struct {
	source registration.SourceType
	mode   registration.ExecutionMode
}

// Verifier is implemented by handlers that check registrations up front.
type Verifier interface {
	Verify(app *registration.App) error
}

// Registry resolves the handler of a registration from a closed table.
type Registry struct {
	handlers map[key]lifecycle.Handler
}

// Handlers are the strategies a Registry dispatches to.
type Handlers struct {
	Executable lifecycle.Handler
	Runtime    lifecycle.Handler
	Service    lifecycle.Handler
	Docker     lifecycle.Handler
}

func NewRegistry(h Handlers) *Registry {
	return &Registry{handlers: map[key]lifecycle.Handler{
		{registration.SourceFilesystem, registration.ModeExecutable}: h.Executable,
		{registration.SourceFilesystem, registration.ModeRuntime}:    h.Runtime,
		{registration.SourceFilesystem, registration.ModeService}:    h.Service,
		{registration.SourceDocker, registration.ModeStandard}:       h.Docker,
	}}
}

// Handler returns the handler serving app.
func (r *Registry) Handler(app *registration.App) (lifecycle.Handler, error) {
	h, ok := r.handlers[key{app.Source.Type, app.Execution.Handler}]
	if !ok || h == nil {
		return nil, &UnsupportedDeploymentModeError{App: app.Name, Source: string(app.Source.Type), Mode: string(app.Execution.Handler)}
	}
	return h, nil
}

// Lookup resolves a handler from raw source type and execution mode names,
// ignoring case.
func (r *Registry) Lookup(app, source, mode string) (lifecycle.Handler, error) {
	st, err1 := registration.ParseSourceType(source)
	m, err2 := registration.ParseExecutionMode(mode)
	if err1 != nil || err2 != nil {
		return nil, &UnsupportedDeploymentModeError{App: app, Source: source, Mode: mode}
	}
	return r.Handler(&registration.App{Name: app, Source: registration.Source{Type: st}, Execution: registration.Execution{Handler: m}})
}

// Verify resolves every app and lets verifying handlers check it.
func (r *Registry) Verify(apps []*registration.App) error {
	var errs []error
	for _, a := range apps {
		h, err := r.Handler(a)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if v, ok := h.(Verifier); ok {
			if err := v.Verify(a); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
