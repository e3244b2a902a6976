package docker

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carlosprados/domino/internal/registration"
)

// engineOnSocket serves h on a Unix socket and returns a client bound to it.
func engineOnSocket(t *testing.T, h http.Handler, servers ...Server) *Client {
	t.Helper()
	dir, err := os.MkdirTemp("", "dk")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	sock := filepath.Join(dir, "docker.sock")

	ln, err := net.Listen("unix", sock)
	require.NoError(t, err)
	srv := httptest.NewUnstartedServer(h)
	srv.Listener = ln
	srv.Start()
	t.Cleanup(srv.Close)

	c, err := New(Config{Socket: sock, Servers: servers})
	require.NoError(t, err)
	return c
}

func TestExecuteSingle(t *testing.T) {
	c := engineOnSocket(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1.40/version", r.URL.Path)
		_, _ = w.Write([]byte(`{"status":"Downloaded"}`))
	}))

	resp, err := c.Execute(context.Background(), NewRequest(Identify).Build())
	require.NoError(t, err)
	assert.True(t, resp.OK())
	assert.JSONEq(t, `{"status":"Downloaded"}`, string(resp.Body))
	assert.Nil(t, resp.Items)
}

func TestExecuteCollectsStreamInOrder(t *testing.T) {
	c := engineOnSocket(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1.40/containers/web/start", r.URL.Path)
		_, _ = w.Write([]byte("{\"n\":1}\n{\"n\":2}\n{\"n\":3}\n"))
	}))

	req, err := LifecycleRequest(Start, &registration.App{Name: "web"})
	require.NoError(t, err)
	resp, err := c.Execute(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, resp.Items, 3)
	for i, it := range resp.Items {
		var v struct{ N int }
		require.NoError(t, json.Unmarshal(it, &v))
		assert.Equal(t, i+1, v.N)
	}
}

func TestExecuteServerErrorIsRejected(t *testing.T) {
	for _, cmd := range []Command{Identify, Pull, Start} {
		t.Run(cmd.String(), func(t *testing.T) {
			c := engineOnSocket(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte(`{"message":"boom"}`))
			}))
			b := NewRequest(cmd).App("web")
			switch cmd {
			case Pull:
				b.Param("image", "nginx").Param("tag", "1")
			case Start:
				b.Param("id", "web")
			}
			_, err := c.Execute(context.Background(), b.Build())
			require.Error(t, err)
			var ee *EngineError
			require.ErrorAs(t, err, &ee)
			assert.Equal(t, http.StatusInternalServerError, ee.StatusCode)
			assert.Equal(t, "boom", ee.Message)
			assert.True(t, IsEngineError(err))
		})
	}
}

func TestExecuteClientErrorCarriesMessage(t *testing.T) {
	c := engineOnSocket(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"No such container: web"}`))
	}))
	req, err := LifecycleRequest(Remove, &registration.App{Name: "web"})
	require.NoError(t, err)
	resp, err := c.Execute(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "No such container: web", resp.Message)
	assert.False(t, resp.OK())
}

func TestPullAuthentication(t *testing.T) {
	var gotAuth []string
	var gotQuery []string
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = append(gotAuth, r.Header.Get(authHeader))
		gotQuery = append(gotQuery, r.URL.RawQuery)
		_, _ = w.Write([]byte("{\"status\":\"Pulling\"}\n{\"status\":\"Done\"}\n"))
	})
	c := engineOnSocket(t, h, Server{Host: "registry.example.com", Username: "bot", Password: "s3cret"})

	app := &registration.App{Name: "cache", Source: registration.Source{Home: "registry.example.com/team", Resource: "redis"}}
	resp, err := c.Execute(context.Background(), PullRequest(app, "7.2"))
	require.NoError(t, err)
	assert.Empty(t, resp.Items, "pull output is not collected")

	other := &registration.App{Name: "web", Source: registration.Source{Home: "docker.io/library", Resource: "nginx"}}
	_, err = c.Execute(context.Background(), PullRequest(other, ""))
	require.NoError(t, err)

	require.Len(t, gotAuth, 2)
	raw, err := base64.URLEncoding.DecodeString(gotAuth[0])
	require.NoError(t, err)
	var auth map[string]string
	require.NoError(t, json.Unmarshal(raw, &auth))
	assert.Equal(t, "bot", auth["username"])
	assert.Equal(t, "s3cret", auth["password"])
	assert.Equal(t, "registry.example.com", auth["serveraddress"])
	assert.Empty(t, gotAuth[1], "no credentials for unknown host")

	assert.Equal(t, "fromImage=registry.example.com%2Fteam%2Fredis&tag=7.2", gotQuery[0])
	assert.Equal(t, "fromImage=docker.io%2Flibrary%2Fnginx&tag=latest", gotQuery[1])
}

func TestPullStreamErrorIsReported(t *testing.T) {
	c := engineOnSocket(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("{\"status\":\"Pulling\"}\n{\"error\":\"manifest unknown\"}\n"))
	}))
	app := &registration.App{Name: "web", Source: registration.Source{Resource: "nginx"}}
	resp, err := c.Execute(context.Background(), PullRequest(app, "9"))
	require.NoError(t, err)
	assert.Equal(t, "manifest unknown", resp.StreamError)
}

func TestIdentify(t *testing.T) {
	c := engineOnSocket(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"Version":"27.5.1","ApiVersion":"1.47"}`))
	}))
	assert.Equal(t, engineUnknown, c.EngineVersion())
	c.Identify(context.Background())
	assert.Equal(t, "27.5.1", c.EngineVersion())
}

func TestIdentifyUnavailable(t *testing.T) {
	c, err := New(Config{Socket: filepath.Join(t.TempDir(), "missing.sock")})
	require.NoError(t, err)
	c.Identify(context.Background())
	assert.Equal(t, EngineUnavailable, c.EngineVersion())
}
