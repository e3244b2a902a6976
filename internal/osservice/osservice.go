// Package osservice drives applications installed as OS service units.
package osservice

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/rs/zerolog/log"
)

// Action is a service command. Only start, stop and restart are issued.
type Action string

const (
	ActionStart   Action = "start"
	ActionStop    Action = "stop"
	ActionRestart Action = "restart"
)

// ErrNoAdapter reports a configured service handler no adapter supports.
var ErrNoAdapter = errors.New("no service adapter matches")

// Runner executes an external command and returns its combined output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecRunner runs commands on the host.
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Adapter controls service units through one init system.
type Adapter interface {
	// Name is the service-handler value the adapter answers to.
	Name() string
	Do(ctx context.Context, unit string, action Action) error
}

type cliAdapter struct {
	name   string
	binary string
	argv   func(unit string, action Action) []string
	run    Runner
}

func (a *cliAdapter) Name() string { return a.name }

func (a *cliAdapter) Do(ctx context.Context, unit string, action Action) error {
	switch action {
	case ActionStart, ActionStop, ActionRestart:
	default:
		return fmt.Errorf("service action %q not allowed", action)
	}
	if unit == "" {
		return fmt.Errorf("empty service unit")
	}
	args := a.argv(unit, action)
	out, err := a.run(ctx, a.binary, args...)
	if err != nil {
		return fmt.Errorf("%s %s: %w: %s", a.binary, strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	log.Debug().Str("adapter", a.name).Str("unit", unit).Str("action", string(action)).Msg("service command done")
	return nil
}

// Systemd runs systemctl <action> <unit>.
func Systemd(run Runner) Adapter {
	return &cliAdapter{name: "systemd", binary: "systemctl", run: run,
		argv: func(unit string, action Action) []string { return []string{string(action), unit} }}
}

// SysVInit runs service <unit> <action>.
func SysVInit(run Runner) Adapter {
	return &cliAdapter{name: "sysvinit", binary: "service", run: run,
		argv: func(unit string, action Action) []string { return []string{unit, string(action)} }}
}

// Select returns the adapter whose name matches name, ignoring case.
func Select(name string, run Runner) (Adapter, error) {
	if run == nil {
		run = ExecRunner
	}
	for _, a := range []Adapter{Systemd(run), SysVInit(run)} {
		if strings.EqualFold(a.Name(), strings.TrimSpace(name)) {
			return a, nil
		}
	}
	return nil, fmt.Errorf("%w %q", ErrNoAdapter, name)
}
