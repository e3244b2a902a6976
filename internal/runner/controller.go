package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sys/unix"

	"github.com/carlosprados/domino/internal/lifecycle"
)

// Options specifies how to spawn a process.
type Options struct {
	Name       string
	Command    string
	Args       []string
	Env        []string
	WorkingDir string
	UID        int
	GID        int
}

// SignalFunc delivers sig to pid; a negative pid addresses a process group.
type SignalFunc func(pid int, sig unix.Signal) error

// Controller spawns detached processes and terminates them by process group.
type Controller struct {
	table  ProcessTable
	signal SignalFunc
	// StopGrace is how long a stop waits for a tracked process to exit before
	// the group gets SIGKILL. Zero sends SIGTERM only.
	StopGrace time.Duration
}

func New() *Controller {
	return &Controller{table: NewSystemTable(), signal: unix.Kill}
}

// NewWith uses the given process table and signal function.
func NewWith(table ProcessTable, signal SignalFunc) *Controller {
	return &Controller{table: table, signal: signal}
}

// Spawn starts opts.Command in its own process group, running as UID/GID in
// WorkingDir. Standard streams are not inherited. The child is reaped in the
// background; the handle's Done channel closes when it exits.
func (c *Controller) Spawn(opts Options) (*lifecycle.ProcessHandle, error) {
	if opts.Command == "" {
		return nil, fmt.Errorf("empty command")
	}
	cmd := exec.Command(opts.Command, opts.Args...)
	cmd.Env = append(os.Environ(), opts.Env...)
	if opts.WorkingDir != "" {
		cmd.Dir = opts.WorkingDir
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
		Credential: &syscall.Credential{
			Uid: uint32(opts.UID),
			Gid: uint32(opts.GID),
			// Supplementary groups can only be dropped by root.
			NoSetGroups: os.Geteuid() != 0,
		},
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("spawn %s: %w", opts.Command, err)
	}

	done := make(chan struct{})
	name := opts.Name
	if name == "" {
		name = opts.Command
	}
	h := lifecycle.NewProcessHandle(cmd.Process.Pid, name, done)
	go func() {
		err := cmd.Wait()
		ev := log.Info().Str("component", name).Int("pid", h.PID)
		if err != nil {
			ev = log.Warn().Str("component", name).Int("pid", h.PID).Err(err)
		}
		ev.Msg("process exited")
		close(done)
	}()
	log.Info().Str("component", name).Int("pid", h.PID).Str("cmd", opts.Command).Msg("process spawned")
	return h, nil
}

// Terminate stops a process. With a handle, SIGTERM goes to its process group.
// Without one, the process table is searched for a command line containing
// resource; no match yields UnknownStopped since absence cannot be confirmed.
func (c *Controller) Terminate(ctx context.Context, h *lifecycle.ProcessHandle, resource string) lifecycle.Status {
	if h != nil {
		if err := c.signal(-h.PID, unix.SIGTERM); err != nil {
			log.Error().Str("component", h.Name).Int("pid", h.PID).Err(err).Msg("group signal failed")
			return lifecycle.StopFailure
		}
		c.awaitExit(ctx, h)
		return lifecycle.Stopped
	}

	pid, found, err := c.table.Find(ctx, resource)
	if err != nil {
		log.Error().Str("resource", resource).Err(err).Msg("process table scan failed")
		return lifecycle.StopFailure
	}
	if !found {
		log.Info().Str("resource", resource).Msg("no running process found")
		return lifecycle.UnknownStopped
	}
	err = c.signal(-pid, unix.SIGTERM)
	if errors.Is(err, unix.ESRCH) {
		// not a group leader
		err = c.signal(pid, unix.SIGTERM)
	}
	if err != nil {
		log.Error().Str("resource", resource).Int("pid", pid).Err(err).Msg("signal failed")
		return lifecycle.StopFailure
	}
	log.Info().Str("resource", resource).Int("pid", pid).Msg("terminated process found in process table")
	return lifecycle.Stopped
}

func (c *Controller) awaitExit(ctx context.Context, h *lifecycle.ProcessHandle) {
	if c.StopGrace <= 0 || h.Done() == nil {
		return
	}
	t := time.NewTimer(c.StopGrace)
	defer t.Stop()
	select {
	case <-h.Done():
	case <-ctx.Done():
	case <-t.C:
		log.Warn().Str("component", h.Name).Int("pid", h.PID).Dur("grace", c.StopGrace).Msg("process did not exit, killing group")
		_ = c.signal(-h.PID, unix.SIGKILL)
	}
}
