// SPDX-License-Identifier: AGPL-3.0-only
package main

import (
	"context"
	"os"
	"testing"

	"github.com/jolks/pipetask/internal/config"
)

// TestApplyCommandLineFlagsToConfig tests the application of command line flags to the configuration
func TestApplyCommandLineFlagsToConfig(t *testing.T) {
	cfg := config.DefaultConfig()

	// Simulate setting command line flags
	tmp := t.TempDir()
	testAddress := "192.168.1.1"
	testPort := 9090
	testTransport := "stdio"
	testLogLevel := "debug"
	testProvider := "ollama"
	testModel := "llama3.2"

	workDir = &tmp
	address = &testAddress
	port = &testPort
	transport = &testTransport
	logLevel = &testLogLevel
	providerName = &testProvider
	modelName = &testModel

	applyCommandLineFlagsToConfig(cfg)

	if cfg.Server.Address != testAddress {
		t.Errorf("expected address %s, got %s", testAddress, cfg.Server.Address)
	}
	if cfg.Server.Port != testPort {
		t.Errorf("expected port %d, got %d", testPort, cfg.Server.Port)
	}
	if cfg.Server.TransportMode != testTransport {
		t.Errorf("expected transport mode %s, got %s", testTransport, cfg.Server.TransportMode)
	}
	if cfg.Logging.Level != testLogLevel {
		t.Errorf("expected log level %s, got %s", testLogLevel, cfg.Logging.Level)
	}
	if cfg.Engine.WorkDir != tmp {
		t.Errorf("expected work dir %s, got %s", tmp, cfg.Engine.WorkDir)
	}
	if cfg.Provider.Default != testProvider {
		t.Errorf("expected provider %s, got %s", testProvider, cfg.Provider.Default)
	}
	if cfg.Provider.Model != testModel {
		t.Errorf("expected model %s, got %s", testModel, cfg.Provider.Model)
	}
}

// TestLoadConfig tests the loading of configuration from defaults, environment, and flags
func TestLoadConfig(t *testing.T) {
	// Set environment variables
	os.Setenv("PIPETASK_SERVER_ADDRESS", "10.0.0.1")
	os.Setenv("PIPETASK_SERVER_PORT", "8888")
	os.Setenv("PIPETASK_LOGGING_LEVEL", "warn")
	defer func() {
		os.Unsetenv("PIPETASK_SERVER_ADDRESS")
		os.Unsetenv("PIPETASK_SERVER_PORT")
		os.Unsetenv("PIPETASK_LOGGING_LEVEL")
	}()

	// Simulate setting command line flags (which should override env vars)
	tmp := t.TempDir()
	testAddress := "192.168.1.1"
	testPort := 9090
	testLogLevel := "debug"
	testTransport := "stdio"

	address = &testAddress
	port = &testPort
	logLevel = &testLogLevel
	transport = &testTransport
	workDir = &tmp

	cfg := loadConfig()

	if cfg.Server.Address != testAddress {
		t.Errorf("expected address %s, got %s", testAddress, cfg.Server.Address)
	}
	if cfg.Server.Port != testPort {
		t.Errorf("expected port %d, got %d", testPort, cfg.Server.Port)
	}
	if cfg.Logging.Level != testLogLevel {
		t.Errorf("expected log level %s, got %s", testLogLevel, cfg.Logging.Level)
	}
	if cfg.Server.TransportMode != testTransport {
		t.Errorf("expected transport mode %s, got %s", testTransport, cfg.Server.TransportMode)
	}
}

// TestCreateAppWiresNullProvider checks the application comes up with the
// null provider and can run a task end to end
func TestCreateAppWiresNullProvider(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Engine.WorkDir = t.TempDir()
	cfg.Provider.Default = "null"

	app, err := createApp(cfg)
	if err != nil {
		t.Fatalf("createApp: %v", err)
	}
	defer app.Cleanup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := app.activate(ctx); err != nil {
		t.Fatalf("activate: %v", err)
	}

	task, err := app.engine.Execute(ctx, "say hello")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !task.Finished() {
		t.Errorf("expected task to be finished, status %s", task.Status)
	}
	if task.Summary == "" {
		t.Error("expected a summary")
	}
}
