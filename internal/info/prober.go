// Package info queries the info endpoint of an application and maps the
// answer onto the fields its registration asks for.
package info

import (
	"context"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	retryablehttp "github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"

	"github.com/carlosprados/domino/internal/registration"
)

// Status is the outcome of an info request.
type Status string

const (
	Provided      Status = "PROVIDED"
	NonConfigured Status = "NON_CONFIGURED"
	Misconfigured Status = "MISCONFIGURED"
	Failed        Status = "FAILED"
)

// Report is an info answer; Info is only set when the endpoint answered 200.
type Report struct {
	Status Status         `json:"status"`
	Info   map[string]any `json:"info,omitempty"`
}

const (
	defaultTimeout = 5 * time.Second
	maxBody        = 1 << 20
)

// Prober requests info endpoints.
type Prober struct {
	client *retryablehttp.Client
}

func New(timeout time.Duration) *Prober {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	c := retryablehttp.NewClient()
	c.RetryMax = 2
	c.RetryWaitMin = 100 * time.Millisecond
	c.RetryWaitMax = time.Second
	c.Logger = nil
	c.HTTPClient.Timeout = timeout
	// hand back the last answer instead of an error once retries run out
	c.ErrorHandler = retryablehttp.PassthroughErrorHandler
	return &Prober{client: c}
}

// Probe requests app's info endpoint. A field that is not found in the
// answer makes the report Misconfigured but the other fields are still set.
func (p *Prober) Probe(ctx context.Context, app *registration.App) Report {
	if !app.Info.Enabled {
		log.Info().Str("app", app.Name).Msg("info endpoint not configured")
		return Report{Status: NonConfigured}
	}
	lg := log.With().Str("app", app.Name).Str("endpoint", app.Info.Endpoint).Logger()
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, app.Info.Endpoint, nil)
	if err != nil {
		lg.Error().Err(err).Msg("invalid info endpoint")
		return Report{Status: Misconfigured}
	}
	resp, err := p.client.Do(req)
	if err != nil {
		lg.Error().Err(err).Msg("info endpoint unreachable")
		return Report{Status: Failed}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		lg.Error().Int("status", resp.StatusCode).Msg("info endpoint answered with an error")
		return Report{Status: Misconfigured}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		lg.Error().Err(err).Msg("reading info answer failed")
		return Report{Status: Failed}
	}
	if !gjson.ValidBytes(body) {
		lg.Error().Msg("info answer is not JSON")
		return Report{Status: Misconfigured}
	}
	return mapFields(body, app.Info.FieldMapping, lg)
}

func mapFields(body []byte, mapping map[string]string, lg zerolog.Logger) Report {
	rep := Report{Status: Provided, Info: map[string]any{}}
	for key, path := range mapping {
		v := gjson.GetBytes(body, Path(path))
		if !v.Exists() {
			rep.Status = Misconfigured
			lg.Warn().Str("field", key).Str("path", path).Msg("info field not found")
			continue
		}
		rep.Info[key] = v.Value()
	}
	return rep
}

var (
	indexSegment  = regexp.MustCompile(`\[(\d+)\]`)
	quotedSegment = regexp.MustCompile(`\[['"]([^'"]+)['"]\]`)
)

// Path turns a simple JSONPath ($.a.b[0]['c']) into a gjson path (a.b.0.c).
// Paths without the $ root are used as they are.
func Path(p string) string {
	if !strings.HasPrefix(p, "$") {
		return p
	}
	p = strings.TrimPrefix(p, "$")
	p = quotedSegment.ReplaceAllString(p, ".$1")
	p = indexSegment.ReplaceAllString(p, ".$1")
	p = strings.TrimPrefix(p, ".")
	if p == "" {
		return "@this"
	}
	return p
}
