// Command echolot is the analysis backend of the Echolot voice-journaling
// application.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/echolotlabs/echolot/internal/config"
	"github.com/echolotlabs/echolot/internal/health"
	"github.com/echolotlabs/echolot/internal/journal/postgres"
	"github.com/echolotlabs/echolot/internal/observe"
	"github.com/echolotlabs/echolot/internal/pipeline"
	"github.com/echolotlabs/echolot/internal/server"
	"github.com/echolotlabs/echolot/internal/transcribe/whisperserver"
	"github.com/echolotlabs/echolot/internal/vault"
	"github.com/echolotlabs/echolot/pkg/inference"
	"github.com/echolotlabs/echolot/pkg/inference/anthropic"
	"github.com/echolotlabs/echolot/pkg/inference/ollama"
	"github.com/echolotlabs/echolot/pkg/inference/openai"
)

// version is stamped by the build; "dev" otherwise.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "echolot: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "echolot: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	levelVar := new(slog.LevelVar)
	levelVar.Set(slogLevel(cfg.Server.LogLevel))
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: levelVar}))
	slog.SetDefault(logger)

	slog.Info("echolot starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"provider", cfg.Inference.Provider,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "echolot",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}

	// ── Credential vault + inference client ──────────────────────────────────
	secrets := vault.NewClient(vault.EnvStore{},
		vault.WithOnLocked(func() { slog.Warn("credential store refused access") }),
		vault.WithOnTimeout(func() { slog.Warn("credential store not answering, continuing without key") }),
	)
	registry := inference.NewRegistry(newFactory(secrets))

	client, err := registry.Get(cfg.Inference.ClientConfig())
	if err != nil {
		slog.Error("failed to construct inference client", "err", err)
		return 1
	}
	backend := inference.NewDynamic(client)

	// ── Journal store ─────────────────────────────────────────────────────────
	if cfg.Journal.PostgresDSN == "" {
		slog.Error("journal.postgres_dsn is required")
		return 1
	}
	store, err := postgres.NewStore(ctx, cfg.Journal.PostgresDSN)
	if err != nil {
		slog.Error("failed to connect journal store", "err", err)
		return 1
	}
	defer store.Close()

	// ── Pipeline ──────────────────────────────────────────────────────────────
	pipeOpts := []pipeline.Option{
		pipeline.WithProviderName(string(cfg.Inference.ClientConfig().Provider)),
	}
	if cfg.Transcriber.ServerURL != "" {
		var trOpts []whisperserver.Option
		if cfg.Transcriber.Model != "" {
			trOpts = append(trOpts, whisperserver.WithModel(cfg.Transcriber.Model))
		}
		if cfg.Transcriber.Language != "" {
			trOpts = append(trOpts, whisperserver.WithLanguage(cfg.Transcriber.Language))
		}
		stt, err := whisperserver.New(cfg.Transcriber.ServerURL, trOpts...)
		if err != nil {
			slog.Error("failed to create transcriber client", "err", err)
			return 1
		}
		pipeOpts = append(pipeOpts, pipeline.WithTranscriber(stt))
	} else {
		slog.Warn("no transcriber configured — recordings cannot be analysed, transcript input only")
	}

	orchestrator, err := pipeline.New(backend, store, pipeOpts...)
	if err != nil {
		slog.Error("failed to create pipeline", "err", err)
		return 1
	}

	// ── HTTP server ───────────────────────────────────────────────────────────
	probes := health.New(
		health.InferenceChecker("inference", backend),
		health.JournalChecker(store),
	)

	srvOpts := []server.Option{
		server.WithHealth(probes),
		server.WithDisabledFeatures(cfg.Features.Disabled),
	}
	if tls := cfg.Server.TLS; tls != nil {
		srvOpts = append(srvOpts, server.WithTLS(tls.CertFile, tls.KeyFile))
	}
	srv, err := server.New(orchestrator, backend, store, srvOpts...)
	if err != nil {
		slog.Error("failed to create server", "err", err)
		return 1
	}

	addr := cfg.Server.ListenAddr
	if addr == "" {
		addr = ":8080"
	}
	if err := srv.Start(ctx, addr); err != nil {
		slog.Error("failed to start server", "err", err)
		return 1
	}

	// ── Config hot reload ─────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(old, next *config.Config) {
		applyReload(old, next, levelVar, registry, backend)
	})
	if err != nil {
		slog.Warn("config watcher disabled", "err", err)
	} else {
		defer watcher.Stop()
	}

	slog.Info("server ready — press Ctrl+C to shut down")
	<-ctx.Done()

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "err", err)
		return 1
	}
	if err := shutdownTelemetry(shutdownCtx); err != nil {
		slog.Warn("telemetry shutdown error", "err", err)
	}
	slog.Info("goodbye")
	return 0
}

// newFactory wires the provider constructors into the registry. The registry
// injects the per-provider timeout; cloud clients read their key from the
// vault on demand.
func newFactory(secrets *vault.Client) inference.Factory {
	return func(cfg inference.Config, timeout time.Duration) (inference.Client, error) {
		switch cfg.Provider {
		case inference.ProviderOllama:
			return ollama.New(cfg, timeout)
		case inference.ProviderOpenAI:
			return openai.New(secrets, timeout)
		case inference.ProviderAnthropic:
			return anthropic.New(secrets, timeout)
		default:
			return nil, fmt.Errorf("unsupported provider %q", cfg.Provider)
		}
	}
}

// applyReload reacts to a config file change. The log level and the
// inference backend apply live; everything else needs a restart.
func applyReload(old, next *config.Config, levelVar *slog.LevelVar, registry *inference.Registry, backend *inference.Dynamic) {
	d := config.Diff(old, next)
	if !d.Any() {
		return
	}

	if d.LogLevelChanged {
		levelVar.Set(slogLevel(d.NewLogLevel))
		slog.Info("log level changed", "level", d.NewLogLevel)
	}

	if d.InferenceChanged {
		client, err := registry.Get(next.Inference.ClientConfig())
		if err != nil {
			slog.Error("reload: keeping previous inference backend", "err", err)
		} else {
			backend.Swap(client)
			slog.Info("inference backend switched",
				"provider", next.Inference.Provider,
				"model", next.Inference.Model,
			)
		}
	}

	if d.FeaturesChanged {
		slog.Warn("feature toggles changed — restart to apply")
	}
	if d.TranscriberChanged {
		slog.Warn("transcriber settings changed — restart to apply")
	}
}

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
