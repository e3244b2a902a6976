package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/carlosprados/domino/internal/agent"
	"github.com/carlosprados/domino/internal/artifact"
	"github.com/carlosprados/domino/internal/config"
	"github.com/carlosprados/domino/internal/docker"
	"github.com/carlosprados/domino/internal/events"
	"github.com/carlosprados/domino/internal/handler"
	"github.com/carlosprados/domino/internal/healthcheck"
	"github.com/carlosprados/domino/internal/identity"
	"github.com/carlosprados/domino/internal/info"
	"github.com/carlosprados/domino/internal/lifecycle"
	"github.com/carlosprados/domino/internal/metrics"
	"github.com/carlosprados/domino/internal/osservice"
	"github.com/carlosprados/domino/internal/registration"
	"github.com/carlosprados/domino/internal/runner"
	"github.com/carlosprados/domino/internal/version"
)

func main() {
	configPath := flag.String("config", "", "Path to the TOML configuration file")
	httpAddr := flag.String("http", "", "HTTP listen address, overrides server.addr")
	logLevel := flag.String("log-level", "info", "Log level (trace, debug, info, warn, error)")
	logPretty := flag.Bool("log-pretty", false, "Human readable console logs")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("domino %s (%s)\n", version.Version, version.Commit)
		return
	}
	setupLogging(*logLevel, *logPretty)

	config.LoadDotEnvDefault()
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("loading configuration failed")
	}
	if *httpAddr != "" {
		cfg.Server.Addr = *httpAddr
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	engine, closer, err := build(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("startup failed")
	}

	srv := &http.Server{Addr: cfg.Server.Addr, Handler: engine.Router(), ReadHeaderTimeout: 10 * time.Second}
	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Str("version", version.Version).Msg("domino starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutdown signal received, draining")

	shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown error")
	}
	if err := closer.Close(); err != nil {
		log.Error().Err(err).Msg("closing event publisher failed")
	}
	log.Info().Msg("bye")
}

func setupLogging(level string, pretty bool) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	zerolog.TimeFieldFormat = time.RFC3339Nano
	if pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
	log.Logger = log.With().Str("agent", "domino").Logger()
}

type publisherCloser interface{ Close() error }

// build wires the engine. Every configuration error here is fatal.
func build(ctx context.Context, cfg *config.Config) (*agent.Engine, publisherCloser, error) {
	regs, err := registration.LoadFile(cfg.RegistrationsPath)
	if err != nil {
		return nil, nil, err
	}

	var executors []identity.App
	for _, a := range regs.Apps() {
		if a.Source.Type == registration.SourceFilesystem {
			executors = append(executors, identity.App{Name: a.Name, User: a.Execution.User})
		}
	}
	ids := identity.NewRegistry()
	if err := ids.RegisterAll(executors); err != nil {
		return nil, nil, err
	}

	adapter, err := osservice.Select(cfg.Lifecycle.ServiceHandler, osservice.ExecRunner)
	if err != nil {
		return nil, nil, err
	}

	servers := make([]docker.Server, 0, len(cfg.Docker.Servers))
	for _, s := range cfg.Docker.Servers {
		servers = append(servers, docker.Server{Host: s.Host, Username: s.Username, Password: s.Password})
	}
	engineClient, err := docker.New(docker.Config{Socket: cfg.Docker.Socket, Timeout: cfg.DockerTimeout(), Servers: servers})
	if err != nil {
		return nil, nil, err
	}

	placer := artifact.NewPlacer(cfg.Storage.Path)
	procs := runner.New()
	restarter := lifecycle.NewRestarter(cfg.StartTimeout())
	sample := metrics.Sampler(ctx)

	exe := handler.NewExecutable(placer, ids, procs, restarter, sample)
	rt := handler.NewRuntime(placer, ids, procs, regs, restarter, sample)
	handlers := handler.NewRegistry(handler.Handlers{
		Executable: exe,
		Runtime:    rt,
		Service:    handler.NewService(placer, ids, adapter),
		Docker:     handler.NewDocker(engineClient),
	})
	if err := handlers.Verify(regs.Apps()); err != nil {
		return nil, nil, err
	}

	pub, err := events.New(cfg.Events.URL, cfg.Events.Subject)
	if err != nil {
		return nil, nil, err
	}

	log.Info().Int("apps", len(regs.Apps())).Str("storage", cfg.Storage.Path).Str("service_handler", adapter.Name()).Msg("registrations loaded")
	return agent.NewEngine(agent.Options{
		Registrations: regs,
		Handlers:      handlers,
		Health:        healthcheck.New(metrics.ObserveHealthAttempt),
		Info:          info.New(0),
		Events:        pub,
		Processes:     agent.Trackers{exe, rt},
		StorageDir:    cfg.Storage.Path,
		StateDir:      cfg.Storage.StatePath,
		KeepVersions:  cfg.Storage.KeepVersions,
	}), pub, nil
}
