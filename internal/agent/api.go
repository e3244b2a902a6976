package agent

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/carlosprados/domino/internal/lifecycle"
	"github.com/carlosprados/domino/internal/registration"
)

var (
	appName     = regexp.MustCompile(`^[a-z]+$`)
	versionName = regexp.MustCompile(`^[a-zA-Z0-9.\-_]+$`)
)

// Router returns the HTTP handler for the local API.
func (e *Engine) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":   "ok",
			"uptime":   e.Uptime().String(),
			"time_utc": time.Now().UTC().Format(time.RFC3339),
		})
	})
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /v1/apps", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, e.Apps())
	})

	deploy := func(w http.ResponseWriter, r *http.Request) {
		name, ok := appParam(w, r)
		if !ok {
			return
		}
		version := r.PathValue("version")
		if version != "" && !versionName.MatchString(version) {
			writeStatus(w, lifecycle.InvalidRequest)
			return
		}
		res, err := e.Deploy(r.Context(), name, version)
		if err != nil {
			writeError(w, name, err)
			return
		}
		writeJSON(w, res.Status.HTTPStatus(), res)
	}
	mux.HandleFunc("PUT /v1/lifecycle/{app}/deploy", deploy)
	mux.HandleFunc("PUT /v1/lifecycle/{app}/deploy/{version}", deploy)

	mux.HandleFunc("PUT /v1/lifecycle/{app}/start", e.statusRoute(e.Start))
	mux.HandleFunc("DELETE /v1/lifecycle/{app}/stop", e.statusRoute(e.Stop))
	mux.HandleFunc("PUT /v1/lifecycle/{app}/restart", e.statusRoute(e.Restart))

	mux.HandleFunc("GET /v1/lifecycle/{app}/info", func(w http.ResponseWriter, r *http.Request) {
		name, ok := appParam(w, r)
		if !ok {
			return
		}
		rep, err := e.Info(r.Context(), name)
		if err != nil {
			writeError(w, name, err)
			return
		}
		writeJSON(w, http.StatusOK, rep)
	})

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("Domino agent is running. See /healthz, /metrics and /v1/apps\n"))
	})

	return mux
}

type statusOp func(ctx context.Context, name string) (lifecycle.Status, error)

func (e *Engine) statusRoute(op statusOp) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name, ok := appParam(w, r)
		if !ok {
			return
		}
		st, err := op(r.Context(), name)
		if err != nil {
			writeError(w, name, err)
			return
		}
		writeStatus(w, st)
	}
}

func appParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	name := r.PathValue("app")
	if !appName.MatchString(name) {
		writeStatus(w, lifecycle.InvalidRequest)
		return "", false
	}
	return name, true
}

func writeError(w http.ResponseWriter, app string, err error) {
	if errors.Is(err, registration.ErrAppNotRegistered) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	log.Error().Str("app", app).Err(err).Msg("request failed")
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
}

func writeStatus(w http.ResponseWriter, st lifecycle.Status) {
	writeJSON(w, st.HTTPStatus(), map[string]lifecycle.Status{"status": st})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
