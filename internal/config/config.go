// Package config loads the agent configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/carlosprados/domino/internal/validate"
)

const (
	DefaultAddr             = ":8080"
	DefaultStoragePath      = "/var/lib/domino/artifacts"
	DefaultStatePath        = "/var/lib/domino/state"
	DefaultRegistrations    = "/etc/domino/registrations.yaml"
	DefaultStartTimeoutMS   = 3000
	DefaultServiceHandler   = "systemd"
	DefaultDockerSocket     = "/var/run/docker.sock"
	DefaultRequestTimeoutMS = 300000
	DefaultEventsSubject    = "domino.lifecycle"
	envPrefix               = "DOMINO_"
)

type Server struct {
	Addr string `toml:"addr"`
}

type Storage struct {
	Path string `toml:"path"`
	// StatePath holds the snapshot of the last known app states.
	StatePath string `toml:"state-path"`
	// KeepVersions is how many stored versions per app survive a deploy; 0 keeps all.
	KeepVersions int `toml:"keep-versions"`
}

type Lifecycle struct {
	// StartTimeout is the restart cool-down in milliseconds.
	StartTimeout   int    `toml:"start-timeout"`
	ServiceHandler string `toml:"service-handler"`
}

type DockerServer struct {
	Host     string `toml:"host"`
	Username string `toml:"username"`
	Password string `toml:"password"`
}

type Docker struct {
	Socket string `toml:"socket"`
	// RequestTimeout bounds every engine call, in milliseconds.
	RequestTimeout int            `toml:"request-timeout"`
	Servers        []DockerServer `toml:"servers"`
}

type Events struct {
	URL     string `toml:"url"`
	Subject string `toml:"subject"`
}

// Config is the agent configuration.
type Config struct {
	RegistrationsPath string    `toml:"registrations-path"`
	Server            Server    `toml:"server"`
	Storage           Storage   `toml:"storage"`
	Lifecycle         Lifecycle `toml:"lifecycle"`
	Docker            Docker    `toml:"docker"`
	Events            Events    `toml:"events"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		RegistrationsPath: DefaultRegistrations,
		Server:            Server{Addr: DefaultAddr},
		Storage:           Storage{Path: DefaultStoragePath, StatePath: DefaultStatePath},
		Lifecycle:         Lifecycle{StartTimeout: DefaultStartTimeoutMS, ServiceHandler: DefaultServiceHandler},
		Docker:            Docker{Socket: DefaultDockerSocket, RequestTimeout: DefaultRequestTimeoutMS},
		Events:            Events{Subject: DefaultEventsSubject},
	}
}

// Load reads the TOML file at path over the defaults, then applies DOMINO_*
// environment overrides. An empty path uses defaults and environment only.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		var generic map[string]any
		if err := toml.Unmarshal(b, &generic); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
		if err := validate.ValidateConfigMap(generic); err != nil {
			return nil, fmt.Errorf("invalid config %s: %w", path, err)
		}
		if err := toml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("decode config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

// Validate checks values that cannot be defaulted.
func (c *Config) Validate() error {
	switch {
	case c.RegistrationsPath == "":
		return fmt.Errorf("registrations-path is required")
	case c.Storage.Path == "":
		return fmt.Errorf("storage.path is required")
	case c.Storage.KeepVersions < 0:
		return fmt.Errorf("storage.keep-versions must not be negative")
	case c.Lifecycle.StartTimeout < 0:
		return fmt.Errorf("lifecycle.start-timeout must not be negative")
	case c.Docker.RequestTimeout <= 0:
		return fmt.Errorf("docker.request-timeout must be positive")
	}
	for i, s := range c.Docker.Servers {
		if s.Host == "" {
			return fmt.Errorf("docker.servers[%d]: host is required", i)
		}
	}
	return nil
}

func (c *Config) StartTimeout() time.Duration {
	return time.Duration(c.Lifecycle.StartTimeout) * time.Millisecond
}

func (c *Config) DockerTimeout() time.Duration {
	return time.Duration(c.Docker.RequestTimeout) * time.Millisecond
}

type lookupFunc func(string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(envPrefix + name); ok && v != "" {
			*dst = v
		}
	}
	num := func(name string, dst *int) error {
		v, ok := lookup(envPrefix + name)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s%s: %w", envPrefix, name, err)
		}
		*dst = n
		return nil
	}
	str("REGISTRATIONS_PATH", &c.RegistrationsPath)
	str("SERVER_ADDR", &c.Server.Addr)
	str("STORAGE_PATH", &c.Storage.Path)
	str("STATE_PATH", &c.Storage.StatePath)
	str("SERVICE_HANDLER", &c.Lifecycle.ServiceHandler)
	str("DOCKER_SOCKET", &c.Docker.Socket)
	str("EVENTS_URL", &c.Events.URL)
	str("EVENTS_SUBJECT", &c.Events.Subject)
	for name, dst := range map[string]*int{
		"KEEP_VERSIONS":          &c.Storage.KeepVersions,
		"START_TIMEOUT":          &c.Lifecycle.StartTimeout,
		"DOCKER_REQUEST_TIMEOUT": &c.Docker.RequestTimeout,
	} {
		if err := num(name, dst); err != nil {
			return err
		}
	}
	return nil
}
