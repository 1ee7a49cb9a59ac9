// SPDX-License-Identifier: AGPL-3.0-only
package server

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ThinkInAIXYZ/go-mcp/protocol"
	"github.com/ThinkInAIXYZ/go-mcp/server"
	"github.com/ThinkInAIXYZ/go-mcp/transport"
	"github.com/jolks/pipetask/internal/config"
	"github.com/jolks/pipetask/internal/errors"
	"github.com/jolks/pipetask/internal/logging"
	"github.com/jolks/pipetask/internal/model"
	"github.com/jolks/pipetask/internal/provider"
	"github.com/jolks/pipetask/internal/scheduler"
)

// TaskRunner is the engine-facing surface the server needs
type TaskRunner interface {
	Execute(ctx context.Context, description string) (*model.Task, error)
	History() []*model.Task
	Task(id string) (*model.Task, error)
}

// ProviderCatalog is the registry-facing surface the server needs
type ProviderCatalog interface {
	Available() []string
	ActiveName() string
	Activate(ctx context.Context, name string, cfg provider.Config) (provider.Provider, error)
}

// ScheduleStore is the scheduler-facing surface the server needs
type ScheduleStore interface {
	Add(name, cronExpr, description string) (*scheduler.Schedule, error)
	Remove(id string) error
	List() []*scheduler.Schedule
}

// TaskIDParams holds the ID parameter used by multiple handlers
type TaskIDParams struct {
	ID string `json:"id" description:"the ID of the task to get"`
}

// RunTaskParams defines parameters for running a task
type RunTaskParams struct {
	Description    string `json:"description" description:"natural-language description of the task"`
	Provider       string `json:"provider,omitempty" description:"provider to activate before running; empty keeps the current one"`
	Model          string `json:"model,omitempty" description:"model identifier override for the provider"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty" description:"overall deadline for the task run"`
}

// ActivateProviderParams defines parameters for switching providers
type ActivateProviderParams struct {
	Name  string `json:"name" description:"provider name to activate"`
	Model string `json:"model,omitempty" description:"model identifier override"`
}

// ScheduleTaskParams defines parameters for creating a recurring task
type ScheduleTaskParams struct {
	Name        string `json:"name,omitempty" description:"schedule name"`
	Cron        string `json:"cron" description:"cron expression"`
	Description string `json:"description" description:"task description submitted on every tick"`
}

// ScheduleIDParams holds the schedule ID parameter
type ScheduleIDParams struct {
	ID string `json:"id" description:"the ID of the schedule to remove"`
}

// MCPServer exposes the task runner, the provider catalog and the
// scheduler as MCP tools
type MCPServer struct {
	runner    TaskRunner
	providers ProviderCatalog
	schedules ScheduleStore
	server    *server.Server
	address   string
	port      int
	stopCh    chan struct{}
	wg        sync.WaitGroup
	config    *config.Config
	logger    *logging.Logger

	shutdownMutex  sync.Mutex
	isShuttingDown bool
}

// NewMCPServer creates a new MCP server around the given collaborators
func NewMCPServer(cfg *config.Config, runner TaskRunner, providers ProviderCatalog, schedules ScheduleStore) (*MCPServer, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	var logger *logging.Logger
	if cfg.Logging.FilePath != "" {
		var err error
		logger, err = logging.FileLogger(cfg.Logging.FilePath, logging.ParseLevel(cfg.Logging.Level))
		if err != nil {
			return nil, fmt.Errorf("failed to create file logger: %w", err)
		}
		logging.SetDefaultLogger(logger)
	} else {
		logger = logging.GetDefaultLogger()
	}

	s := &MCPServer{
		runner:    runner,
		providers: providers,
		schedules: schedules,
		address:   cfg.Server.Address,
		port:      cfg.Server.Port,
		stopCh:    make(chan struct{}),
		config:    cfg,
		logger:    logger,
	}

	var svrTransport transport.ServerTransport
	var err error

	switch cfg.Server.TransportMode {
	case "stdio":
		// stdout carries JSON-RPC in stdio mode; logging must go to the
		// configured file, never the standard streams
		logger.Infof("Using stdio transport")
		svrTransport = transport.NewStdioServerTransport()
	case "sse":
		addr := fmt.Sprintf("%s:%d", cfg.Server.Address, cfg.Server.Port)
		logger.Infof("Using SSE transport on %s", addr)
		svrTransport, err = transport.NewSSEServerTransport(addr)
		if err != nil {
			return nil, errors.Internal(fmt.Errorf("failed to create SSE transport: %w", err))
		}
	default:
		return nil, errors.InvalidInput(fmt.Sprintf("unsupported transport mode: %s", cfg.Server.TransportMode))
	}

	s.server, err = server.NewServer(
		svrTransport,
		server.WithServerInfo(protocol.Implementation{
			Name:    cfg.Server.Name,
			Version: cfg.Server.Version,
		}),
	)
	if err != nil {
		return nil, errors.Internal(fmt.Errorf("failed to create MCP server: %w", err))
	}

	return s, nil
}

// Start starts the MCP server
func (s *MCPServer) Start(ctx context.Context) error {
	s.registerToolsDeclarative()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.server.Run(); err != nil {
			s.logger.Errorf("Error running MCP server: %v", err)
		}
	}()

	go func() {
		<-ctx.Done()
		if err := s.Stop(); err != nil {
			s.logger.Errorf("Error stopping MCP server: %v", err)
		}
	}()

	return nil
}

// Stop stops the MCP server
func (s *MCPServer) Stop() error {
	s.shutdownMutex.Lock()
	defer s.shutdownMutex.Unlock()

	if s.isShuttingDown {
		s.logger.Debugf("Stop called but server is already shutting down, ignoring")
		return nil
	}
	s.isShuttingDown = true

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return errors.Internal(fmt.Errorf("error shutting down MCP server: %w", err))
	}

	select {
	case <-s.stopCh:
	default:
		close(s.stopCh)
	}

	s.wg.Wait()
	return nil
}

// handleRunTask runs one task end to end against the active provider
func (s *MCPServer) handleRunTask(ctx context.Context, request *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var params RunTaskParams
	if err := extractParams(request, &params); err != nil {
		return createErrorResponse(err)
	}
	if strings.TrimSpace(params.Description) == "" {
		return createErrorResponse(errors.InvalidInput("description is required"))
	}

	s.logger.Debugf("Handling run_task request: %s", params.Description)

	if params.Provider != "" {
		cfg := provider.Config{Model: params.Model}
		if _, err := s.providers.Activate(ctx, params.Provider, cfg); err != nil {
			return createErrorResponse(err)
		}
	}

	runCtx := ctx
	if params.TimeoutSeconds > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, time.Duration(params.TimeoutSeconds)*time.Second)
		defer cancel()
	}

	task, err := s.runner.Execute(runCtx, params.Description)
	if err != nil {
		// the task carries the failure details; surface them to the client
		if task != nil {
			return createTaskResponse(task)
		}
		return createErrorResponse(err)
	}
	return createTaskResponse(task)
}

// handleListProviders lists registered providers and the active one
func (s *MCPServer) handleListProviders(ctx context.Context, request *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	s.logger.Debugf("Handling list_providers request")
	return createJSONResponse(map[string]interface{}{
		"providers": s.providers.Available(),
		"active":    s.providers.ActiveName(),
	})
}

// handleActivateProvider switches the active provider
func (s *MCPServer) handleActivateProvider(ctx context.Context, request *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var params ActivateProviderParams
	if err := extractParams(request, &params); err != nil {
		return createErrorResponse(err)
	}
	if params.Name == "" {
		return createErrorResponse(errors.InvalidInput("provider name is required"))
	}

	s.logger.Debugf("Handling activate_provider request for %s", params.Name)

	if _, err := s.providers.Activate(ctx, params.Name, provider.Config{Model: params.Model}); err != nil {
		return createErrorResponse(err)
	}
	return createSuccessResponse(fmt.Sprintf("Provider %s activated", params.Name))
}

// handleGetTask returns one finished task by ID
func (s *MCPServer) handleGetTask(ctx context.Context, request *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	taskID, err := extractTaskIDParam(request)
	if err != nil {
		return createErrorResponse(err)
	}

	s.logger.Debugf("Handling get_task request for task %s", taskID)

	task, err := s.runner.Task(taskID)
	if err != nil {
		return createErrorResponse(err)
	}
	return createTaskResponse(task)
}

// handleListTasks lists all finished tasks of this run
func (s *MCPServer) handleListTasks(ctx context.Context, request *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	s.logger.Debugf("Handling list_tasks request")
	return createTasksResponse(s.runner.History())
}

// handleScheduleTask registers a recurring task submission
func (s *MCPServer) handleScheduleTask(ctx context.Context, request *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var params ScheduleTaskParams
	if err := extractParams(request, &params); err != nil {
		return createErrorResponse(err)
	}

	s.logger.Debugf("Handling schedule_task request: %s", params.Description)

	sched, err := s.schedules.Add(params.Name, params.Cron, params.Description)
	if err != nil {
		return createErrorResponse(err)
	}
	return createJSONResponse(sched)
}

// handleListSchedules lists registered schedules
func (s *MCPServer) handleListSchedules(ctx context.Context, request *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	s.logger.Debugf("Handling list_schedules request")
	return createJSONResponse(s.schedules.List())
}

// handleRemoveSchedule deletes a schedule
func (s *MCPServer) handleRemoveSchedule(ctx context.Context, request *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var params ScheduleIDParams
	if err := extractParams(request, &params); err != nil {
		return createErrorResponse(err)
	}
	if params.ID == "" {
		return createErrorResponse(errors.InvalidInput("schedule ID is required"))
	}

	s.logger.Debugf("Handling remove_schedule request for %s", params.ID)

	if err := s.schedules.Remove(params.ID); err != nil {
		return createErrorResponse(err)
	}
	return createSuccessResponse(fmt.Sprintf("Schedule %s removed", params.ID))
}
