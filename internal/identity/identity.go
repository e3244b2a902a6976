// Package identity resolves and validates the OS accounts applications run as.
package identity

import (
	"errors"
	"fmt"
	"regexp"
	"sync"

	"github.com/moby/sys/user"
	"github.com/rs/zerolog/log"
)

var (
	ErrNotRegistered   = errors.New("no executor identity registered")
	ErrPrivileged      = errors.New("executor identity is privileged")
	ErrInvalidUsername = errors.New("invalid executor username")
	ErrUnknownUser     = errors.New("unknown executor user")
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// Account is the subset of a passwd entry the agent needs.
type Account struct {
	Name string
	UID  int
	GID  int
}

// LookupFunc resolves a username to an account.
type LookupFunc func(name string) (Account, error)

// App is what the registry needs to know about an application.
type App struct {
	Name string
	User string
}

// Registry maps application names to validated, non-root executor identities.
// It is filled once by RegisterAll and read-only afterwards.
type Registry struct {
	lookup LookupFunc

	mu   sync.RWMutex
	apps map[string]Account
}

func NewRegistry() *Registry { return NewRegistryWithLookup(SystemLookup) }

// NewRegistryWithLookup uses lookup instead of the system user database.
func NewRegistryWithLookup(lookup LookupFunc) *Registry {
	return &Registry{lookup: lookup, apps: map[string]Account{}}
}

// SystemLookup reads /etc/passwd.
func SystemLookup(name string) (Account, error) {
	u, err := user.LookupUser(name)
	if err != nil {
		return Account{}, err
	}
	return Account{Name: u.Name, UID: u.Uid, GID: u.Gid}, nil
}

// RegisterAll resolves the executor of every app. Each distinct username is
// looked up once. The first invalid identity aborts registration and nothing
// is recorded.
func (r *Registry) RegisterAll(apps []App) error {
	resolved := map[string]Account{}
	out := make(map[string]Account, len(apps))
	for _, a := range apps {
		acc, ok := resolved[a.User]
		if !ok {
			var err error
			acc, err = r.resolve(a.User)
			if err != nil {
				return fmt.Errorf("app %q: %w", a.Name, err)
			}
			resolved[a.User] = acc
		}
		out[a.Name] = acc
	}

	r.mu.Lock()
	r.apps = out
	r.mu.Unlock()
	log.Info().Int("apps", len(out)).Int("users", len(resolved)).Msg("executor identities registered")
	return nil
}

func (r *Registry) resolve(name string) (Account, error) {
	if name == "root" {
		return Account{}, fmt.Errorf("%w: root", ErrPrivileged)
	}
	if !usernamePattern.MatchString(name) {
		return Account{}, fmt.Errorf("%w: %q", ErrInvalidUsername, name)
	}
	acc, err := r.lookup(name)
	if err != nil {
		return Account{}, fmt.Errorf("%w %q: %v", ErrUnknownUser, name, err)
	}
	if acc.UID == 0 {
		return Account{}, fmt.Errorf("%w: %q resolves to uid 0", ErrPrivileged, name)
	}
	return acc, nil
}

func (r *Registry) account(app string) (Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	acc, ok := r.apps[app]
	if !ok {
		return Account{}, fmt.Errorf("%w: %s", ErrNotRegistered, app)
	}
	return acc, nil
}

// UserID returns the uid app runs as.
func (r *Registry) UserID(app string) (int, error) {
	acc, err := r.account(app)
	return acc.UID, err
}

// GroupID returns the primary gid app runs as.
func (r *Registry) GroupID(app string) (int, error) {
	acc, err := r.account(app)
	return acc.GID, err
}
