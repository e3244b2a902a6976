package lifecycle

import (
	"sync"
	"time"
)

// ProcessHandle references a child process spawned by the agent.
type ProcessHandle struct {
	PID       int
	Name      string
	StartedAt time.Time

	done <-chan struct{}
}

// NewProcessHandle wraps pid. done is closed once the process has been reaped.
func NewProcessHandle(pid int, name string, done <-chan struct{}) *ProcessHandle {
	return &ProcessHandle{PID: pid, Name: name, StartedAt: time.Now(), done: done}
}

// Done is closed when the process exits.
func (h *ProcessHandle) Done() <-chan struct{} { return h.done }

// Exited reports whether the process has exited.
func (h *ProcessHandle) Exited() bool {
	if h.done == nil {
		return false
	}
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// ProcessBook maps application names to the processes spawned for them.
// A missing entry means the agent does not know of any process; an entry
// whose handle has exited is kept until a stop clears it.
type ProcessBook struct {
	mu    sync.RWMutex
	procs map[string]*ProcessHandle
}

func NewProcessBook() *ProcessBook {
	return &ProcessBook{procs: map[string]*ProcessHandle{}}
}

func (b *ProcessBook) Get(app string) (*ProcessHandle, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	h, ok := b.procs[app]
	return h, ok
}

func (b *ProcessBook) Put(app string, h *ProcessHandle) {
	b.mu.Lock()
	b.procs[app] = h
	b.mu.Unlock()
}

func (b *ProcessBook) Delete(app string) {
	b.mu.Lock()
	delete(b.procs, app)
	b.mu.Unlock()
}

// Live returns the handle for app if the process is still running.
func (b *ProcessBook) Live(app string) (*ProcessHandle, bool) {
	h, ok := b.Get(app)
	if !ok || h.Exited() {
		return nil, false
	}
	return h, true
}
