package registration

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// SourceType tells where an application's artifact comes from.
type SourceType string

const (
	SourceFilesystem SourceType = "FILESYSTEM"
	SourceDocker     SourceType = "DOCKER"
)

// ExecutionMode selects how an application is run.
type ExecutionMode string

const (
	ModeExecutable ExecutionMode = "EXECUTABLE"
	ModeRuntime    ExecutionMode = "RUNTIME"
	ModeService    ExecutionMode = "SERVICE"
	// ModeStandard is the plain Docker container lifecycle.
	ModeStandard ExecutionMode = "STANDARD"
)

var (
	ErrAppNotRegistered     = errors.New("application is not registered")
	ErrRuntimeNotRegistered = errors.New("runtime is not registered")
)

// ParseSourceType parses s case-insensitively.
func ParseSourceType(s string) (SourceType, error) {
	switch t := SourceType(strings.ToUpper(strings.TrimSpace(s))); t {
	case SourceFilesystem, SourceDocker:
		return t, nil
	}
	return "", fmt.Errorf("invalid source type %q", s)
}

// ParseExecutionMode parses s case-insensitively.
func ParseExecutionMode(s string) (ExecutionMode, error) {
	switch m := ExecutionMode(strings.ToUpper(strings.TrimSpace(s))); m {
	case ModeExecutable, ModeRuntime, ModeService, ModeStandard:
		return m, nil
	}
	return "", fmt.Errorf("invalid execution handler %q", s)
}

// App is a registered application. Registrations are loaded once at startup
// and never modified afterwards.
type App struct {
	Name        string
	Source      Source
	Runtime     string
	Execution   Execution
	HealthCheck HealthCheck
	Info        Info
}

type Source struct {
	Type SourceType
	// Home is the working directory for filesystem sources and the registry
	// host (plus namespace) for Docker sources.
	Home     string
	Resource string
}

type Execution struct {
	Handler     ExecutionMode
	CommandName string
	User        string
	// Args are positional arguments for filesystem strategies.
	Args []string
	// Container holds the container options of Docker registrations.
	Container *ContainerArgs
}

// ContainerArgs are the container creation options of a Docker registration.
type ContainerArgs struct {
	CommandArgs   []string          `yaml:"command-args"`
	Environment   map[string]string `yaml:"environment"`
	Volumes       map[string]string `yaml:"volumes"`
	NetworkMode   string            `yaml:"network-mode"`
	Ports         map[string]string `yaml:"ports"`
	RestartPolicy string            `yaml:"restart-policy"`
	// Custom is sent to the engine as the creation body unchanged, apart from the image.
	Custom map[string]any `yaml:"custom"`
}

type HealthCheck struct {
	Enabled     bool
	Delay       time.Duration
	Timeout     time.Duration
	MaxAttempts int
	Endpoint    string
}

type Info struct {
	Enabled      bool
	Endpoint     string
	FieldMapping map[string]string
}

// Runtime is a language runtime used to launch RUNTIME registrations.
type Runtime struct {
	Name           string
	Binary         string
	ResourceMarker string
}

// Set is the immutable, ordered collection of loaded registrations.
type Set struct {
	apps     []*App
	byName   map[string]*App
	runtimes map[string]*Runtime
}

// NewSet indexes apps and runtimes. Duplicate application names are rejected.
func NewSet(apps []*App, runtimes []*Runtime) (*Set, error) {
	s := &Set{byName: make(map[string]*App, len(apps)), runtimes: make(map[string]*Runtime, len(runtimes))}
	for _, a := range apps {
		if _, dup := s.byName[a.Name]; dup {
			return nil, fmt.Errorf("duplicate registration %q", a.Name)
		}
		s.byName[a.Name] = a
		s.apps = append(s.apps, a)
	}
	for _, r := range runtimes {
		s.runtimes[r.Name] = r
	}
	return s, nil
}

// Apps returns the registrations in file order.
func (s *Set) Apps() []*App {
	out := make([]*App, len(s.apps))
	copy(out, s.apps)
	return out
}

// App returns the registration called name.
func (s *Set) App(name string) (*App, error) {
	a, ok := s.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAppNotRegistered, name)
	}
	return a, nil
}

// Runtime returns the runtime registration called name.
func (s *Set) Runtime(name string) (*Runtime, error) {
	r, ok := s.runtimes[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrRuntimeNotRegistered, name)
	}
	return r, nil
}
