package docker

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"
)

type param struct {
	key   string
	value string
}

// Request is an engine call ready to be issued. It is immutable once built.
type Request struct {
	cmd    Command
	app    string
	home   string
	params []param
	body   any
}

func (r *Request) Command() Command { return r.cmd }
func (r *Request) App() string      { return r.app }

// Home is the image home used to find registry credentials.
func (r *Request) Home() string { return r.home }

// Path substitutes the URL parameters into the command's template. Values
// are path-escaped before the query string and query-escaped after it.
func (r *Request) Path() (string, error) {
	tmpl := r.cmd.PathTemplate()
	qi := strings.IndexByte(tmpl, '?')
	for _, p := range r.params {
		token := "{" + p.key + "}"
		idx := strings.Index(tmpl, token)
		if idx < 0 {
			return "", fmt.Errorf("%s: unknown parameter %q", r.cmd, p.key)
		}
		val := url.PathEscape(p.value)
		if qi >= 0 && idx > qi {
			val = url.QueryEscape(p.value)
		}
		tmpl = strings.Replace(tmpl, token, val, 1)
		qi = strings.IndexByte(tmpl, '?')
	}
	if i := strings.IndexByte(tmpl, '{'); i >= 0 {
		return "", fmt.Errorf("%s: unresolved parameter in %q", r.cmd, tmpl)
	}
	return tmpl, nil
}

func (r *Request) bodyReader() (io.Reader, error) {
	if r.body == nil {
		return nil, nil
	}
	b, err := json.Marshal(r.body)
	if err != nil {
		return nil, fmt.Errorf("%s: encode body: %w", r.cmd, err)
	}
	return bytes.NewReader(b), nil
}

// RequestBuilder assembles a Request.
type RequestBuilder struct {
	r Request
}

func NewRequest(cmd Command) *RequestBuilder {
	return &RequestBuilder{r: Request{cmd: cmd}}
}

func (b *RequestBuilder) App(name string) *RequestBuilder {
	b.r.app = name
	return b
}

func (b *RequestBuilder) Home(home string) *RequestBuilder {
	b.r.home = home
	return b
}

func (b *RequestBuilder) Param(key, value string) *RequestBuilder {
	b.r.params = append(b.r.params, param{key, value})
	return b
}

func (b *RequestBuilder) Body(body any) *RequestBuilder {
	b.r.body = body
	return b
}

// Build returns a copy, so the builder may be reused.
func (b *RequestBuilder) Build() *Request {
	r := b.r
	r.params = append([]param(nil), b.r.params...)
	return &r
}
