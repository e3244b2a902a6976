// Package lifecycle holds the contract shared by every deployment strategy.
package lifecycle

import (
	"context"
	"net/http"

	"github.com/carlosprados/domino/internal/registration"
)

// Status is the outcome of a lifecycle operation. UNKNOWN_* outcomes mean the
// strategy could not confirm the state synchronously.
type Status string

const (
	Uploaded                   Status = "UPLOADED"
	Deployed                   Status = "DEPLOYED"
	DeployFailedUnknown        Status = "DEPLOY_FAILED_UNKNOWN"
	DeployFailedMissingVersion Status = "DEPLOY_FAILED_MISSING_VERSION"
	UnknownStarted             Status = "UNKNOWN_STARTED"
	StartFailure               Status = "START_FAILURE"
	Stopped                    Status = "STOPPED"
	UnknownStopped             Status = "UNKNOWN_STOPPED"
	StopFailure                Status = "STOP_FAILURE"
	HealthCheckOK              Status = "HEALTH_CHECK_OK"
	HealthCheckFailure         Status = "HEALTH_CHECK_FAILURE"
	InvalidRequest             Status = "INVALID_REQUEST"
)

// LatestVersion is reported when no explicit version was requested.
const LatestVersion = "latest"

// HTTPStatus maps s onto the status code the API answers with.
func (s Status) HTTPStatus() int {
	switch s {
	case Uploaded:
		return http.StatusCreated
	case Deployed, Stopped, HealthCheckOK:
		return http.StatusOK
	case UnknownStarted, UnknownStopped:
		return http.StatusAccepted
	case DeployFailedMissingVersion:
		return http.StatusNotFound
	case InvalidRequest:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Failed reports whether s is a failure outcome.
func (s Status) Failed() bool { return s.HTTPStatus() >= http.StatusBadRequest }

// Result is the outcome of a deploy.
type Result struct {
	Status  Status `json:"status"`
	Version string `json:"version"`
}

// Handler runs the lifecycle of one kind of registration. Implementations
// convert every operational failure into a Status; they never return errors.
type Handler interface {
	Deploy(ctx context.Context, app *registration.App, version string) Result
	Start(ctx context.Context, app *registration.App) Status
	Stop(ctx context.Context, app *registration.App) Status
	Restart(ctx context.Context, app *registration.App) Status
}
