package docker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/docker/docker/api/types/registry"
	"github.com/docker/go-connections/sockets"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
)

const (
	DefaultSocket  = "/var/run/docker.sock"
	DefaultTimeout = 5 * time.Minute

	authHeader = "X-Registry-Auth"
	// EngineUnavailable is recorded when the engine could not be identified.
	EngineUnavailable = "Unavailable"
	engineUnknown     = "Unknown"
)

var minAPIVersion = semver.MustParse(APIVersion)

// Server holds the credentials for one registry host.
type Server struct {
	Host     string
	Username string
	Password string
}

// Config configures a Client.
type Config struct {
	Socket  string
	Timeout time.Duration
	Servers []Server
}

// EngineError is an engine answer with status >= 500.
type EngineError struct {
	Command    Command
	StatusCode int
	Message    string
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("docker %s: engine error %d: %s", e.Command, e.StatusCode, e.Message)
}

// Response is a classified engine answer.
type Response struct {
	StatusCode int
	// Body is the decoded body of Single commands, nil when empty.
	Body json.RawMessage
	// Items are the collected values of LogAndCollectStream commands.
	Items []json.RawMessage
	// Message is the engine's explanation of a 4xx answer.
	Message string
	// StreamError is the first error reported inside a 2xx stream.
	StreamError string
}

// OK reports a 2xx answer.
func (r *Response) OK() bool { return r.StatusCode >= 200 && r.StatusCode < 300 }

// Client issues catalog commands to the engine.
type Client struct {
	http    *http.Client
	base    string
	servers []Server
	engine  atomic.Pointer[string]
}

// New returns a client bound to the engine's Unix socket. No connection is
// made until the first command.
func New(cfg Config) (*Client, error) {
	if cfg.Socket == "" {
		cfg.Socket = DefaultSocket
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	tr := &http.Transport{}
	if err := sockets.ConfigureTransport(tr, "unix", cfg.Socket); err != nil {
		return nil, fmt.Errorf("docker transport: %w", err)
	}
	return newClient(&http.Client{Transport: tr, Timeout: cfg.Timeout}, "http://docker", cfg.Servers), nil
}

func newClient(hc *http.Client, base string, servers []Server) *Client {
	c := &Client{http: hc, base: base, servers: servers}
	unknown := engineUnknown
	c.engine.Store(&unknown)
	return c
}

// EngineVersion returns the identified engine version, if any.
func (c *Client) EngineVersion() string { return *c.engine.Load() }

func (c *Client) logger() zerolog.Logger {
	return log.With().Str("component", "docker").Str("engine", c.EngineVersion()).Logger()
}

// Execute issues r and classifies the answer by the command's policy.
// Transport failures and answers with status >= 500 are errors; other
// non-2xx answers are returned with their Message set.
func (c *Client) Execute(ctx context.Context, r *Request) (*Response, error) {
	path, err := r.Path()
	if err != nil {
		return nil, err
	}
	body, err := r.bodyReader()
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, r.cmd.Method(), c.base+path, body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	lg := c.logger().With().Str("app", r.app).Str("command", r.cmd.String()).Logger()
	if r.cmd.NeedsAuth() {
		if err := c.authenticate(req, r.home, &lg); err != nil {
			return nil, err
		}
	}

	lg.Debug().Str("method", req.Method).Str("path", path).Msg("engine request")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("docker %s: %w", r.cmd, err)
	}
	defer resp.Body.Close()
	return classify(r.cmd, resp, &lg)
}

func (c *Client) authenticate(req *http.Request, home string, lg *zerolog.Logger) error {
	srv, ok := c.serverFor(home)
	if !ok {
		lg.Warn().Str("home", home).Msg("no registry credentials configured, pulling unauthenticated")
		return nil
	}
	enc, err := registry.EncodeAuthConfig(registry.AuthConfig{
		Username:      srv.Username,
		Password:      srv.Password,
		ServerAddress: srv.Host,
	})
	if err != nil {
		return fmt.Errorf("encode registry auth: %w", err)
	}
	req.Header.Set(authHeader, enc)
	return nil
}

func (c *Client) serverFor(home string) (Server, bool) {
	if home == "" {
		return Server{}, false
	}
	for _, s := range c.servers {
		if s.Host != "" && strings.HasPrefix(home, s.Host) {
			return s, true
		}
	}
	return Server{}, false
}

func classify(cmd Command, resp *http.Response, lg *zerolog.Logger) (*Response, error) {
	out := &Response{StatusCode: resp.StatusCode}
	if resp.StatusCode >= http.StatusInternalServerError {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxChunk))
		return nil, &EngineError{Command: cmd, StatusCode: resp.StatusCode, Message: engineMessage(b)}
	}
	if resp.StatusCode >= http.StatusBadRequest || resp.StatusCode == http.StatusNotModified {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxChunk))
		out.Message = engineMessage(b)
		lg.Debug().Int("status", resp.StatusCode).Str("message", out.Message).Msg("engine answered")
		return out, nil
	}

	if cmd.Policy() == Single {
		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("docker %s: read body: %w", cmd, err)
		}
		if len(strings.TrimSpace(string(b))) > 0 {
			if !json.Valid(b) {
				return nil, fmt.Errorf("docker %s: malformed body", cmd)
			}
			out.Body = b
		}
		return out, nil
	}

	for v, err := range Values(resp.Body) {
		if err != nil {
			return nil, fmt.Errorf("docker %s: read stream: %w", cmd, err)
		}
		if e := gjson.GetBytes(v, "error"); e.Exists() && out.StreamError == "" {
			out.StreamError = e.String()
			lg.Error().Str("error", out.StreamError).Msg("engine reported error in stream")
		}
		lg.Debug().RawJSON("item", v).Msg("engine output")
		if cmd.Policy() == LogAndCollectStream {
			out.Items = append(out.Items, v)
		}
	}
	return out, nil
}

func engineMessage(b []byte) string {
	if m := gjson.GetBytes(b, "message"); m.Exists() {
		return m.String()
	}
	return strings.TrimSpace(string(b))
}

// Identify probes the engine version once and caches it for log annotation.
// A failure records EngineUnavailable and is not retried.
func (c *Client) Identify(ctx context.Context) {
	resp, err := c.Execute(ctx, NewRequest(Identify).Build())
	if err == nil && !resp.OK() {
		err = fmt.Errorf("status %d: %s", resp.StatusCode, resp.Message)
	}
	if err != nil {
		unavailable := EngineUnavailable
		c.engine.Store(&unavailable)
		log.Warn().Str("component", "docker").Err(err).Msg("docker engine not identified")
		return
	}
	version := gjson.GetBytes(resp.Body, "Version").String()
	if version == "" {
		version = EngineUnavailable
	}
	c.engine.Store(&version)

	lg := c.logger()
	api := gjson.GetBytes(resp.Body, "ApiVersion").String()
	if v, err := semver.NewVersion(api); err != nil {
		lg.Warn().Str("api_version", api).Msg("engine reported an unparsable API version")
	} else if v.LessThan(minAPIVersion) {
		lg.Warn().Str("api_version", api).Str("required", APIVersion).Msg("engine API is older than required")
	}
	lg.Info().Str("api_version", api).Msg("docker engine identified")
}

// IsEngineError reports whether err is an answer with status >= 500.
func IsEngineError(err error) bool {
	var ee *EngineError
	return errors.As(err, &ee)
}
