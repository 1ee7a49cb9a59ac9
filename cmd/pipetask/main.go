// SPDX-License-Identifier: AGPL-3.0-only
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/jolks/pipetask/internal/config"
	"github.com/jolks/pipetask/internal/engine"
	"github.com/jolks/pipetask/internal/logging"
	"github.com/jolks/pipetask/internal/model"
	"github.com/jolks/pipetask/internal/provider"
	"github.com/jolks/pipetask/internal/scheduler"
	"github.com/jolks/pipetask/internal/server"
)

var (
	// buildVersion is set at build time via -ldflags "-X main.buildVersion=<version>"
	buildVersion = "dev"
	providerName = flag.String("provider", "", "Provider to use: claude, ollama, openai or null")
	modelName    = flag.String("model", "", "Model identifier passed to the provider")
	taskDesc     = flag.String("task", "", "Run this task once and exit")
	taskTimeout  = flag.Duration("timeout", 0, "Overall deadline for a one-shot task")
	interactive  = flag.Bool("interactive", false, "Read task descriptions from stdin, one per line")
	serve        = flag.Bool("serve", false, "Run as an MCP server")
	workDir      = flag.String("work-dir", "", "Working directory for tasks (default: ~/.pipetask)")
	address      = flag.String("address", "", "The address to bind the server to")
	port         = flag.Int("port", 0, "The port to bind the server to")
	transport    = flag.String("transport", "", "Transport mode: sse or stdio")
	logLevel     = flag.String("log-level", "", "Logging level: debug, info, warn, error, fatal")
	configPath   = flag.String("config", "", "Path to a JSON configuration file")
	showVersion  = flag.Bool("version", false, "Show version information and exit")
)

func main() {
	flag.Parse()

	cfg := loadConfig()

	// Fill in build version from ldflags if available
	if buildVersion != "" {
		cfg.Server.Version = buildVersion
	}

	if *showVersion {
		log.Printf("%s version %s", cfg.Server.Name, cfg.Server.Version)
		os.Exit(0)
	}

	os.Exit(run(cfg))
}

func run(cfg *config.Config) int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := createApp(cfg)
	if err != nil {
		log.Printf("Failed to create application: %v", err)
		return 1
	}
	defer app.Cleanup()

	switch {
	case *serve:
		return app.Serve(ctx, cancel)
	case *interactive:
		return app.Interactive(ctx)
	case *taskDesc != "":
		return app.RunOnce(ctx, *taskDesc)
	default:
		fmt.Fprintln(os.Stderr, "nothing to do: pass -task, -interactive or -serve")
		flag.Usage()
		return 2
	}
}

// loadConfig loads configuration from file, environment and command line flags
func loadConfig() *config.Config {
	// Start with defaults
	cfg := config.DefaultConfig()

	// Override with the config file, then environment, then flags
	if *configPath != "" {
		if err := config.LoadFile(*configPath, cfg); err != nil {
			log.Fatalf("Failed to load config file: %v", err)
		}
	}
	config.FromEnv(cfg)
	applyCommandLineFlagsToConfig(cfg)

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	return cfg
}

// applyCommandLineFlagsToConfig applies command line flags to the configuration
func applyCommandLineFlagsToConfig(cfg *config.Config) {
	// Determine work directory (default to ~/.pipetask)
	wd := *workDir
	if wd == "" && cfg.Engine.WorkDir == "" {
		home := os.Getenv("HOME")
		if home == "" {
			// Fallback to current directory if HOME is unset
			home, _ = os.Getwd()
		}
		wd = filepath.Join(home, ".pipetask")
	}
	if wd != "" {
		cfg.Engine.WorkDir = wd
	}
	// Ensure work dir exists
	_ = os.MkdirAll(cfg.Engine.WorkDir, 0o755)

	if *address != "" {
		cfg.Server.Address = *address
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *transport != "" {
		cfg.Server.TransportMode = *transport
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if *providerName != "" {
		cfg.Provider.Default = *providerName
	}
	if *modelName != "" {
		cfg.Provider.Model = *modelName
	}
	if *serve && cfg.Server.TransportMode == "stdio" {
		// stdout carries JSON-RPC in stdio mode, keep logs in a file
		cfg.Logging.FilePath = filepath.Join(cfg.Engine.WorkDir, "pipetask.log")
	}
}

// Application represents the running application
type Application struct {
	cfg       *config.Config
	registry  *provider.Registry
	engine    *engine.Engine
	scheduler *scheduler.Scheduler
	server    *server.MCPServer
	logger    *logging.Logger
}

// createApp creates a new application instance
func createApp(cfg *config.Config) (*Application, error) {
	logger := logging.GetDefaultLogger()
	if cfg.Logging.FilePath != "" {
		var err error
		logger, err = logging.FileLogger(cfg.Logging.FilePath, logging.ParseLevel(cfg.Logging.Level))
		if err != nil {
			return nil, err
		}
		logging.SetDefaultLogger(logger)
	} else {
		logger.SetLevel(logging.ParseLevel(cfg.Logging.Level))
	}

	bus := engine.NewBus()
	registry := provider.NewRegistry(bus.Publish, logger)
	registry.Discover()

	eng := engine.New(registry, bus, cfg.Engine, logger)
	sched := scheduler.New(&cfg.Scheduler, eng, logger)

	app := &Application{
		cfg:       cfg,
		registry:  registry,
		engine:    eng,
		scheduler: sched,
		logger:    logger,
	}

	return app, nil
}

// Cleanup stops whatever is still running
func (a *Application) Cleanup() {
	a.scheduler.Stop()
	a.registry.Cleanup()
}

// activate brings up the configured provider
func (a *Application) activate(ctx context.Context) error {
	name := a.cfg.Provider.Default
	_, err := a.registry.Activate(ctx, name, provider.Config{Model: a.cfg.Provider.Model})
	if err != nil {
		return err
	}
	a.logger.Infof("Provider %s active", name)
	return nil
}

// RunOnce executes a single task and reports its outcome on stdout
func (a *Application) RunOnce(ctx context.Context, description string) int {
	if err := a.activate(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "provider: %v\n", err)
		return 1
	}

	runCtx := ctx
	if *taskTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, *taskTimeout)
		defer cancel()
	}

	task, err := a.engine.Execute(runCtx, description)
	if err != nil {
		fmt.Fprintf(os.Stderr, "task failed: %v\n", err)
		if task != nil {
			printTask(task)
		}
		return 1
	}

	printTask(task)
	return 0
}

// Interactive reads task descriptions from stdin, one per line, until
// EOF or an "exit" line
func (a *Application) Interactive(ctx context.Context) int {
	if err := a.activate(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "provider: %v\n", err)
		return 1
	}

	fmt.Printf("pipetask %s, provider %s. Enter a task per line, \"exit\" to quit.\n",
		a.cfg.Server.Version, a.registry.ActiveName())

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			break
		}

		task, err := a.engine.Execute(ctx, line)
		if err != nil {
			fmt.Fprintf(os.Stderr, "task failed: %v\n", err)
			continue
		}
		printTask(task)
	}
	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "stdin: %v\n", err)
		return 1
	}
	return 0
}

// Serve runs the MCP server plus the scheduler until a termination signal
func (a *Application) Serve(ctx context.Context, cancel context.CancelFunc) int {
	mcpServer, err := server.NewMCPServer(a.cfg, a.engine, a.registry, a.scheduler)
	if err != nil {
		a.logger.Errorf("Failed to create MCP server: %v", err)
		return 1
	}
	a.server = mcpServer
	a.logger = logging.GetDefaultLogger()

	a.scheduler.Start(ctx)
	a.logger.Infof("Scheduler started")

	if err := a.server.Start(ctx); err != nil {
		a.logger.Errorf("Failed to start MCP server: %v", err)
		return 1
	}
	a.logger.Infof("MCP server started")

	if *configPath != "" {
		go a.watchConfig(ctx, *configPath)
	}

	waitForSignal(cancel, a)
	return 0
}

// watchConfig hot-reloads the config file, applying the settings that
// can change at runtime
func (a *Application) watchConfig(ctx context.Context, path string) {
	events, err := config.Watch(ctx, path)
	if err != nil {
		a.logger.Warnf("Config watch disabled: %v", err)
		return
	}
	for range events {
		cfg := config.DefaultConfig()
		if err := config.LoadFile(path, cfg); err != nil {
			a.logger.Warnf("Config reload skipped: %v", err)
			continue
		}
		a.logger.SetLevel(logging.ParseLevel(cfg.Logging.Level))
		a.cfg.Logging.Level = cfg.Logging.Level
		a.logger.Infof("Config reloaded, log level %s", cfg.Logging.Level)
	}
}

// printTask reports a finished task on stdout
func printTask(task *model.Task) {
	fmt.Printf("task %s: %s (%d/%d steps)\n",
		task.ID, task.Status, task.CompletedResults(), len(task.Steps))
	if task.Summary != "" {
		fmt.Println(task.Summary)
	}
}

// waitForSignal waits for termination signals and performs cleanup
func waitForSignal(cancel context.CancelFunc, app *Application) {
	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)

	<-signalCh
	app.logger.Infof("Received termination signal, shutting down...")

	// Cancel the context to initiate shutdown
	cancel()

	// Stop the application with a timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	shutdownDone := make(chan struct{})
	go func() {
		app.scheduler.Stop()
		if err := app.server.Stop(); err != nil {
			app.logger.Errorf("Error during shutdown: %v", err)
		}
		close(shutdownDone)
	}()

	select {
	case <-shutdownDone:
		app.logger.Infof("Graceful shutdown completed")
	case <-shutdownCtx.Done():
		app.logger.Warnf("Shutdown timed out")
	}
}
