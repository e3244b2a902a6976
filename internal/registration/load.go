package registration

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/carlosprados/domino/internal/validate"
)

const (
	DefaultHealthDelay       = 10 * time.Second
	DefaultHealthTimeout     = 3 * time.Second
	DefaultHealthMaxAttempts = 3
)

type fileDoc struct {
	Domino struct {
		Runtimes      []map[string]runtimeDoc      `yaml:"runtimes"`
		Registrations []map[string]registrationDoc `yaml:"registrations"`
	} `yaml:"domino"`
}

type runtimeDoc struct {
	Binary         string `yaml:"binary"`
	ResourceMarker string `yaml:"resource-marker"`
}

type registrationDoc struct {
	Source struct {
		Type     string `yaml:"type"`
		Home     string `yaml:"home"`
		Resource string `yaml:"resource"`
	} `yaml:"source"`
	Runtime   string `yaml:"runtime"`
	Execution struct {
		CommandName string    `yaml:"command-name"`
		AsUser      string    `yaml:"as-user"`
		Via         string    `yaml:"via"`
		Args        yaml.Node `yaml:"args"`
	} `yaml:"execution"`
	HealthCheck *struct {
		Enabled     bool   `yaml:"enabled"`
		Delay       string `yaml:"delay"`
		Timeout     string `yaml:"timeout"`
		MaxAttempts int    `yaml:"max-attempts"`
		Endpoint    string `yaml:"endpoint"`
	} `yaml:"health-check"`
	Info *struct {
		Enabled      bool              `yaml:"enabled"`
		Endpoint     string            `yaml:"endpoint"`
		FieldMapping map[string]string `yaml:"field-mapping"`
	} `yaml:"info"`
}

// LoadFile reads and parses a registrations file.
func LoadFile(path string) (*Set, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read registrations: %w", err)
	}
	s, err := Parse(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Parse validates b against the registrations schema and decodes it.
func Parse(b []byte) (*Set, error) {
	var generic any
	if err := yaml.Unmarshal(b, &generic); err != nil {
		return nil, fmt.Errorf("parse registrations: %w", err)
	}
	if err := validate.ValidateRegistrations(generic); err != nil {
		return nil, fmt.Errorf("invalid registrations: %w", err)
	}

	var doc fileDoc
	dec := yaml.NewDecoder(bytes.NewReader(b))
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode registrations: %w", err)
	}

	var runtimes []*Runtime
	for _, item := range doc.Domino.Runtimes {
		for name, rd := range item {
			runtimes = append(runtimes, &Runtime{Name: name, Binary: rd.Binary, ResourceMarker: rd.ResourceMarker})
		}
	}

	var apps []*App
	for _, item := range doc.Domino.Registrations {
		for name, rd := range item {
			app, err := rd.toApp(name)
			if err != nil {
				return nil, fmt.Errorf("registration %q: %w", name, err)
			}
			apps = append(apps, app)
		}
	}
	return NewSet(apps, runtimes)
}

func (rd registrationDoc) toApp(name string) (*App, error) {
	st, err := ParseSourceType(rd.Source.Type)
	if err != nil {
		return nil, err
	}
	mode, err := ParseExecutionMode(rd.Execution.Via)
	if err != nil {
		return nil, err
	}
	app := &App{
		Name:    name,
		Source:  Source{Type: st, Home: rd.Source.Home, Resource: rd.Source.Resource},
		Runtime: rd.Runtime,
		Execution: Execution{
			Handler:     mode,
			CommandName: rd.Execution.CommandName,
			User:        rd.Execution.AsUser,
		},
		HealthCheck: HealthCheck{
			Delay:       DefaultHealthDelay,
			Timeout:     DefaultHealthTimeout,
			MaxAttempts: DefaultHealthMaxAttempts,
		},
	}
	if err := decodeArgs(&rd.Execution.Args, &app.Execution); err != nil {
		return nil, err
	}
	if hc := rd.HealthCheck; hc != nil {
		app.HealthCheck.Enabled = hc.Enabled
		app.HealthCheck.Endpoint = hc.Endpoint
		if hc.MaxAttempts > 0 {
			app.HealthCheck.MaxAttempts = hc.MaxAttempts
		}
		if app.HealthCheck.Delay, err = parseDuration(hc.Delay, DefaultHealthDelay); err != nil {
			return nil, fmt.Errorf("health-check delay: %w", err)
		}
		if app.HealthCheck.Timeout, err = parseDuration(hc.Timeout, DefaultHealthTimeout); err != nil {
			return nil, fmt.Errorf("health-check timeout: %w", err)
		}
		if app.HealthCheck.Enabled && app.HealthCheck.Endpoint == "" {
			return nil, fmt.Errorf("health-check enabled without endpoint")
		}
	}
	if in := rd.Info; in != nil {
		app.Info = Info{Enabled: in.Enabled, Endpoint: in.Endpoint, FieldMapping: in.FieldMapping}
	}
	return app, nil
}

// decodeArgs reads execution.args: a sequence of positional arguments, or a
// mapping of container options for Docker registrations.
func decodeArgs(n *yaml.Node, ex *Execution) error {
	switch n.Kind {
	case 0:
		return nil
	case yaml.ScalarNode:
		if n.Tag == "!!null" {
			return nil
		}
		return fmt.Errorf("execution args must be a list or a mapping")
	case yaml.SequenceNode:
		if err := n.Decode(&ex.Args); err != nil {
			return fmt.Errorf("execution args: %w", err)
		}
		return nil
	case yaml.MappingNode:
		var ca ContainerArgs
		if err := n.Decode(&ca); err != nil {
			return fmt.Errorf("container args: %w", err)
		}
		ex.Container = &ca
		return nil
	default:
		return fmt.Errorf("execution args must be a list or a mapping")
	}
}

func parseDuration(s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("must be positive, got %s", s)
	}
	return d, nil
}
