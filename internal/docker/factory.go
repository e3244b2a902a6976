package docker

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/go-connections/nat"

	"github.com/carlosprados/domino/internal/registration"
)

const defaultTag = "latest"

// Image returns the image reference of app without tag: home/resource, or
// resource alone when no home is set.
func Image(app *registration.App) string {
	home := strings.TrimSuffix(app.Source.Home, "/")
	if home == "" {
		return app.Source.Resource
	}
	return home + "/" + app.Source.Resource
}

// PullRequest pulls app's image at tag; an empty tag pulls latest.
func PullRequest(app *registration.App, tag string) *Request {
	if tag == "" {
		tag = defaultTag
	}
	return NewRequest(Pull).
		App(app.Name).
		Home(app.Source.Home).
		Param("image", Image(app)).
		Param("tag", tag).
		Build()
}

// ContainerName is the execution command name of app, or the application
// name when none is set.
func ContainerName(app *registration.App) string {
	if app.Execution.CommandName != "" {
		return app.Execution.CommandName
	}
	return app.Name
}

// CreateRequest creates the container of app from its image at tag.
func CreateRequest(app *registration.App, tag string) (*Request, error) {
	if tag == "" {
		tag = defaultTag
	}
	body, err := ContainerBody(app, Image(app)+":"+tag)
	if err != nil {
		return nil, err
	}
	return NewRequest(CreateContainer).
		App(app.Name).
		Home(app.Source.Home).
		Param("name", ContainerName(app)).
		Body(body).
		Build(), nil
}

// LifecycleRequest acts on the container of app. Only START, STOP, RESTART
// and REMOVE are accepted.
func LifecycleRequest(cmd Command, app *registration.App) (*Request, error) {
	if !cmd.IsLifecycle() {
		return nil, fmt.Errorf("%s is not a container lifecycle command", cmd)
	}
	return NewRequest(cmd).App(app.Name).Home(app.Source.Home).Param("id", ContainerName(app)).Build(), nil
}

// ContainerBody maps the container args of app onto a creation body. A
// custom body is passed through with only its Image replaced.
func ContainerBody(app *registration.App, image string) (any, error) {
	args := app.Execution.Container
	if args == nil {
		return container.CreateRequest{Config: &container.Config{Image: image}, HostConfig: &container.HostConfig{}}, nil
	}
	if args.Custom != nil {
		body := maps.Clone(args.Custom)
		body["Image"] = image
		return body, nil
	}

	cfg := &container.Config{
		Image: image,
		Cmd:   args.CommandArgs,
	}
	for _, k := range slices.Sorted(maps.Keys(args.Environment)) {
		cfg.Env = append(cfg.Env, k+"="+args.Environment[k])
	}
	host := &container.HostConfig{
		NetworkMode: container.NetworkMode(args.NetworkMode),
	}
	for _, hostPath := range slices.Sorted(maps.Keys(args.Volumes)) {
		target := args.Volumes[hostPath]
		host.Binds = append(host.Binds, hostPath+":"+target)
		if cfg.Volumes == nil {
			cfg.Volumes = map[string]struct{}{}
		}
		cfg.Volumes[strings.SplitN(target, ":", 2)[0]] = struct{}{}
	}
	if args.RestartPolicy != "" {
		host.RestartPolicy = container.RestartPolicy{Name: container.RestartPolicyMode(args.RestartPolicy)}
	}
	if len(args.Ports) > 0 {
		cfg.ExposedPorts = nat.PortSet{}
		host.PortBindings = nat.PortMap{}
		for _, hostPort := range slices.Sorted(maps.Keys(args.Ports)) {
			containerPort := args.Ports[hostPort]
			proto, port := nat.SplitProtoPort(containerPort)
			p, err := nat.NewPort(proto, port)
			if err != nil {
				return nil, fmt.Errorf("app %s: port %q: %w", app.Name, containerPort, err)
			}
			cfg.ExposedPorts[p] = struct{}{}
			host.PortBindings[p] = append(host.PortBindings[p], nat.PortBinding{HostPort: hostPort})
		}
	}
	return container.CreateRequest{Config: cfg, HostConfig: host}, nil
}
