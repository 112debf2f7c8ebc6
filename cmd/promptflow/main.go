// Package main is the entry point for the promptflow server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/tcmartin/promptflow/pkg/api"
	"github.com/tcmartin/promptflow/pkg/config"
	"github.com/tcmartin/promptflow/pkg/llm"
	"github.com/tcmartin/promptflow/pkg/logging"
	"github.com/tcmartin/promptflow/pkg/registry"
	"github.com/tcmartin/promptflow/pkg/runtime"
	"github.com/tcmartin/promptflow/pkg/storage"
)

var (
	// Command-line flags
	configPath = flag.String("config", "", "Path to config file (JSON or YAML)")
	version    = flag.Bool("version", false, "Print version information")
)

// Version information
const (
	AppVersion = "0.1.0"
	AppName    = "promptflow"
)

func main() {
	// Load environment variables from .env file
	_ = godotenv.Load()

	flag.Parse()

	if *version {
		fmt.Printf("%s version %s\n", AppName, AppVersion)
		return
	}

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := logging.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	app, err := NewApp(cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize application", logging.Err(err))
		os.Exit(1)
	}

	// Handle graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("Application failed", logging.Err(err))
			_ = app.Close()
			os.Exit(1)
		}
	case <-stop:
		logger.Info("Shutting down gracefully")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := app.Stop(ctx); err != nil {
			logger.Error("Error during shutdown", logging.Err(err))
			os.Exit(1)
		}
	}
}

// loadConfig loads the configuration from the specified path or the first
// standard location that holds one, then applies environment overrides
func loadConfig() (*config.Config, error) {
	var cfg *config.Config

	if *configPath != "" {
		var err error
		cfg, err = config.LoadConfig(*configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", *configPath, err)
		}
	} else {
		home, _ := os.UserHomeDir()
		locations := []string{
			"./config.yaml",
			"./config.json",
			"./configs/config.yaml",
			"./configs/config.json",
			filepath.Join(home, ".promptflow", "config.yaml"),
			filepath.Join(home, ".promptflow", "config.json"),
			"/etc/promptflow/config.yaml",
		}

		for _, path := range locations {
			if loadedCfg, err := config.LoadConfig(path); err == nil {
				cfg = loadedCfg
				break
			}
		}

		if cfg == nil {
			cfg = config.DefaultConfig()
		}
	}

	if err := config.ApplyEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// App represents the promptflow application
type App struct {
	config          *config.Config
	server          *api.Server
	storageProvider storage.StorageProvider
	logger          logging.Logger
}

// NewApp wires storage, the registry, the completion client and the executor
// behind the HTTP server
func NewApp(cfg *config.Config, logger logging.Logger) (*App, error) {
	logger.Info("Initializing storage provider", logging.F("type", cfg.Storage.Type))

	storageProvider, err := storage.NewProvider(cfg.Storage.ProviderConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create storage provider: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := storageProvider.Initialize(ctx); err != nil {
		_ = storageProvider.Close()
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	flowRegistry := registry.NewFlowRegistry(storageProvider.GetFlowStore(), registry.FlowRegistryOptions{
		Logger: logger,
	})

	client, err := llm.NewClient(cfg.Model.ClientConfig())
	if err != nil {
		_ = storageProvider.Close()
		return nil, fmt.Errorf("failed to create completion client: %w", err)
	}
	logger.Info("Completion endpoint configured", logging.F("endpoint", client.Endpoint()))

	executor := runtime.NewExecutor(client, logger)
	flowRuntime := runtime.NewFlowRuntime(flowRegistry, executor)

	if cfg.Auth.JWTSecret == "" {
		logger.Warn("No JWT secret configured, API authentication is disabled")
	}

	return &App{
		config:          cfg,
		server:          api.NewServer(cfg, flowRegistry, flowRuntime, logger),
		storageProvider: storageProvider,
		logger:          logger,
	}, nil
}

// Start starts the application
func (a *App) Start() error {
	a.logger.Info("Starting application",
		logging.F("app", a.config.AppName),
		logging.F("version", AppVersion),
	)
	return a.server.Start()
}

// Stop stops the application gracefully
func (a *App) Stop(ctx context.Context) error {
	if err := a.server.Stop(ctx); err != nil {
		return err
	}
	return a.Close()
}

// Close releases the storage provider
func (a *App) Close() error {
	if err := a.storageProvider.Close(); err != nil {
		return fmt.Errorf("failed to close storage: %w", err)
	}
	return nil
}
