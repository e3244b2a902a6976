// Package docker talks to the Docker Engine API over its Unix socket.
package docker

import "net/http"

// APIVersion prefixes every engine path.
const APIVersion = "1.40"

// Policy says how a response body is drained.
type Policy int

const (
	// Single returns one JSON body.
	Single Policy = iota
	// LogOnlyStream logs each value of a JSON stream and discards it.
	LogOnlyStream
	// LogAndCollectStream logs each value and returns them in order.
	LogAndCollectStream
)

func (p Policy) String() string {
	switch p {
	case Single:
		return "SINGLE"
	case LogOnlyStream:
		return "LOG_ONLY_STREAM"
	case LogAndCollectStream:
		return "LOG_AND_COLLECT_STREAM"
	}
	return "UNKNOWN"
}

// Command is an engine operation from a closed catalog.
type Command int

const (
	Identify Command = iota
	Pull
	CreateContainer
	Start
	Stop
	Restart
	Remove
)

type commandSpec struct {
	name   string
	method string
	path   string
	auth   bool
	policy Policy
}

var catalog = map[Command]commandSpec{
	Identify:        {"IDENTIFY", http.MethodGet, "/v" + APIVersion + "/version", false, Single},
	Pull:            {"PULL", http.MethodPost, "/v" + APIVersion + "/images/create?fromImage={image}&tag={tag}", true, LogOnlyStream},
	CreateContainer: {"CREATE_CONTAINER", http.MethodPost, "/v" + APIVersion + "/containers/create?name={name}", false, LogAndCollectStream},
	Start:           {"START", http.MethodPost, "/v" + APIVersion + "/containers/{id}/start", false, LogAndCollectStream},
	Stop:            {"STOP", http.MethodPost, "/v" + APIVersion + "/containers/{id}/stop", false, LogAndCollectStream},
	Restart:         {"RESTART", http.MethodPost, "/v" + APIVersion + "/containers/{id}/restart", false, LogAndCollectStream},
	Remove:          {"REMOVE", http.MethodDelete, "/v" + APIVersion + "/containers/{id}?force=true", false, LogAndCollectStream},
}

func (c Command) String() string {
	if s, ok := catalog[c]; ok {
		return s.name
	}
	return "UNKNOWN"
}

func (c Command) Method() string { return catalog[c].method }

// PathTemplate returns the URL template with {placeholder} tokens.
func (c Command) PathTemplate() string { return catalog[c].path }

// NeedsAuth reports whether the command carries registry credentials.
func (c Command) NeedsAuth() bool { return catalog[c].auth }

func (c Command) Policy() Policy { return catalog[c].policy }

// IsLifecycle reports whether c acts on an existing container.
func (c Command) IsLifecycle() bool {
	switch c {
	case Start, Stop, Restart, Remove:
		return true
	}
	return false
}
