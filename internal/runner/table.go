package runner

import (
	"context"
	"os"
	"strings"

	"github.com/shirou/gopsutil/v4/process"
)

// ProcessTable searches running processes.
type ProcessTable interface {
	// Find returns the pid of a process whose command line contains needle.
	Find(ctx context.Context, needle string) (pid int, found bool, err error)
}

// SystemTable reads the host process table through gopsutil.
type SystemTable struct {
	self int32
}

func NewSystemTable() *SystemTable { return &SystemTable{self: int32(os.Getpid())} }

func (t *SystemTable) Find(ctx context.Context, needle string) (int, bool, error) {
	if needle == "" {
		return 0, false, nil
	}
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return 0, false, err
	}
	for _, p := range procs {
		if p.Pid == t.self {
			continue
		}
		// processes may vanish during the scan
		cmdline, err := p.CmdlineWithContext(ctx)
		if err != nil || cmdline == "" {
			continue
		}
		if strings.Contains(cmdline, needle) {
			return int(p.Pid), true, nil
		}
	}
	return 0, false, nil
}
