package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"spai-hq/gatekeeper/pkg/agent"
	"spai-hq/gatekeeper/pkg/appeal"
	"spai-hq/gatekeeper/pkg/classifier"
	"spai-hq/gatekeeper/pkg/cli"
	"spai-hq/gatekeeper/pkg/config"
	"spai-hq/gatekeeper/pkg/llm"
	"spai-hq/gatekeeper/pkg/pipeline"
	"spai-hq/gatekeeper/pkg/server"
	"spai-hq/gatekeeper/pkg/settings"
	"spai-hq/gatekeeper/pkg/state"
	"spai-hq/gatekeeper/pkg/storage"
	"spai-hq/gatekeeper/pkg/telemetry/logging"
	"spai-hq/gatekeeper/pkg/telemetry/metrics"
	"spai-hq/gatekeeper/pkg/telemetry/tracing"
)

var runFlags struct {
	listenAddress string
	logLevel      string
	dryRun        bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the gatekeeper daemon",
	Long: `Start the gatekeeper daemon with the specified configuration.

The daemon listens on the configured loopback address for page captures
from browser surfaces, evaluates them against the focus policy, and
pushes enforcement signals back over per-tab event streams.

Examples:
  # Start with defaults
  gatekeeper run

  # Start with a custom config
  gatekeeper run --config /etc/gatekeeper/config.yaml

  # Override listen address
  gatekeeper run --listen 127.0.0.1:9000

  # Validate config without starting
  gatekeeper run --dry-run`,
	RunE: runDaemon,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting the daemon")
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadWithEnvOverrides(cfgFile)
	if err != nil {
		return cli.NewConfigError("", fmt.Sprintf("failed to load config: %v", err))
	}
	if runFlags.listenAddress != "" {
		cfg.Server.ListenAddress = runFlags.listenAddress
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}
	if err := config.Validate(cfg); err != nil {
		return cli.NewConfigError("", err.Error())
	}

	logger, err := logging.New(logging.Config{
		Level:       cfg.Telemetry.Logging.Level,
		Format:      cfg.Telemetry.Logging.Format,
		AddSource:   cfg.Telemetry.Logging.AddSource,
		RedactPages: cfg.Telemetry.Logging.RedactPages,
	})
	if err != nil {
		return cli.NewConfigError("telemetry.logging", err.Error())
	}
	log := logger.Slog()
	slog.SetDefault(log)

	if runFlags.dryRun {
		fmt.Println("✓ Configuration valid")
		return nil
	}

	ctx, stop := cli.SetupSignalHandler()
	defer stop()

	tracer, err := tracing.New(&cfg.Telemetry.Tracing, Version)
	if err != nil {
		return cli.NewCommandError("run", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracer.Shutdown(shutdownCtx); err != nil {
			log.Warn("tracer shutdown failed", "error", err)
		}
	}()

	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, prometheus.NewRegistry())

	backend, err := openBackend(&cfg.Storage)
	if err != nil {
		return cli.NewCommandError("run", err)
	}
	defer backend.Close()

	store, err := settings.NewStore(ctx, settings.StoreConfig{
		Backend:        backend,
		OperatorSecret: cfg.Settings.OperatorSecret,
		Logger:         log,
		OnTamper:       collector.RecordTamper,
	})
	if err != nil {
		return cli.NewCommandError("run", err)
	}

	hub := server.NewHub(log)
	defer hub.Close()

	manager, err := state.NewManager(state.ManagerConfig{
		Logger: log,
		OnExpire: func(hostname string) {
			// The page is no longer allowed; ask every tab still on the
			// host to re-capture so enforcement can re-run.
			hub.SignalTabsOnHost(hostname, pipeline.Signal{Type: pipeline.SignalRequestCapture})
		},
	})
	if err != nil {
		return cli.NewCommandError("run", err)
	}
	defer manager.Stop()

	if err := manager.Restore(ctx, backend); err != nil {
		log.Warn("state restore failed, starting empty", "error", err)
	}
	defer func() {
		saveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := manager.Save(saveCtx, backend); err != nil {
			log.Warn("state save failed", "error", err)
		}
	}()

	onStrictExpiry := func() {
		// The read lazily clears the expired lock and persists the
		// cleared record; the timer only decides when that happens.
		readCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := store.Get(readCtx); err != nil {
			log.Warn("strict expiry settings read failed", "error", err)
			return
		}
		log.Info("strict mode lock expired")
	}
	if snap, err := store.Get(ctx); err == nil && snap.Locked {
		if exp := snap.Settings.StrictMode.ExpiresAt; exp != nil {
			manager.ScheduleStrictExpiry(time.UnixMilli(*exp), onStrictExpiry)
		}
	}

	chatClient, err := buildChatClient(cfg, log)
	if err != nil {
		return cli.NewCommandError("run", err)
	}

	cls, err := classifier.New(classifier.Config{
		Client:        chatClient,
		Model:         cfg.LLM.ClassifierModel,
		Timeout:       cfg.Classifier.Timeout,
		Deterministic: cfg.Classifier.Deterministic,
		Logger:        log,
	})
	if err != nil {
		return cli.NewCommandError("run", err)
	}

	arbiter, err := appeal.New(appeal.Config{
		Client: chatClient,
		Model:  cfg.LLM.AppealModel,
		Logger: log,
	})
	if err != nil {
		return cli.NewCommandError("run", err)
	}

	registry := agent.NewRegistry(log)
	registry.Register(pipeline.SenseAgent{})
	registry.Register(pipeline.NewClassifyAgent(cls, collector))
	registry.Register(pipeline.DecideAgent{})
	registry.Register(pipeline.NewEnforceAgent(manager, hub, collector, log))
	registry.Register(pipeline.EchoAgent{})
	registry.Register(pipeline.NewSummarizeTitleAgent(chatClient, cfg.LLM.SummaryModel))
	log.Info("agents registered", "agents", registry.Names())

	pipe, err := pipeline.New(pipeline.Config{
		Registry: registry,
		Settings: store,
		State:    manager,
		Metrics:  collector,
		Logger:   log,
	})
	if err != nil {
		return cli.NewCommandError("run", err)
	}

	srv, err := server.New(server.Options{
		Config:         &cfg.Server,
		Pipeline:       pipe,
		Settings:       store,
		State:          manager,
		Arbiter:        arbiter,
		Registry:       registry,
		Hub:            hub,
		Metrics:        collector,
		OnStrictExpiry: onStrictExpiry,
		Logger:         log,
		Version:        Version,
	})
	if err != nil {
		return cli.NewCommandError("run", err)
	}

	if cfgFile != "" {
		watcher, err := config.NewWatcher(cfgFile, log)
		if err != nil {
			log.Warn("config watcher unavailable", "error", err)
		} else {
			go func() {
				if err := watcher.Watch(ctx, func(next *config.Config) {
					if err := logger.SetLevel(next.Telemetry.Logging.Level); err != nil {
						log.Warn("reload: bad log level", "error", err)
					}
				}); err != nil && ctx.Err() == nil {
					log.Warn("config watcher stopped", "error", err)
				}
			}()
		}
	}

	fmt.Printf("✓ Gatekeeper listening on %s\n", cfg.Server.ListenAddress)
	fmt.Printf("✓ Health endpoint: http://%s/healthz\n", cfg.Server.ListenAddress)
	if cfg.Telemetry.Metrics.Enabled {
		fmt.Printf("✓ Metrics endpoint: http://%s/metrics\n", cfg.Server.ListenAddress)
	}
	fmt.Println("\nPress Ctrl+C to stop")

	if err := srv.Start(ctx); err != nil {
		return cli.NewCommandError("run", err)
	}
	return nil
}

// openBackend builds the configured persistence backend.
func openBackend(cfg *config.StorageConfig) (storage.Backend, error) {
	switch cfg.Backend {
	case "sqlite":
		return storage.NewSQLiteBackend(cfg.Path)
	case "memory":
		return storage.NewMemoryBackend(), nil
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", cfg.Backend)
	}
}

// buildChatClient builds the LLM client, or a stub when no backend is
// configured (deterministic mode). The stub keeps the appeal and summary
// surfaces constructible; they answer with their error fallbacks.
func buildChatClient(cfg *config.Config, log *slog.Logger) (llm.Client, error) {
	if cfg.LLM.BaseURL == "" {
		log.Warn("no LLM backend configured; appeals fall back to refusals")
		return unavailableClient{}, nil
	}
	return llm.NewHTTPClient(llm.ClientConfig{
		BaseURL:    cfg.LLM.BaseURL,
		APIKey:     cfg.LLM.APIKey,
		Timeout:    cfg.LLM.Timeout,
		MaxRetries: cfg.LLM.MaxRetries,
		Logger:     log,
	})
}

// unavailableClient fails every chat call.
type unavailableClient struct{}

func (unavailableClient) Chat(context.Context, *llm.ChatRequest) (string, error) {
	return "", fmt.Errorf("no LLM backend configured")
}
