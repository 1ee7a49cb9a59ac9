// SPDX-License-Identifier: AGPL-3.0-only
package server

import (
	"context"

	"github.com/ThinkInAIXYZ/go-mcp/protocol"
	"github.com/ThinkInAIXYZ/go-mcp/server"
)

// ToolDefinition represents a tool that can be registered with the MCP server
type ToolDefinition struct {
	// Name is the name of the tool
	Name string

	// Description is a brief description of what the tool does
	Description string

	// Handler is the function that will be called when the tool is invoked
	Handler func(context.Context, *protocol.CallToolRequest) (*protocol.CallToolResult, error)

	// Parameters is the parameter schema for the tool (can be a struct)
	Parameters interface{}
}

// registerToolsDeclarative sets up all the MCP tools using a more declarative approach
func (s *MCPServer) registerToolsDeclarative() {
	tools := []ToolDefinition{
		{
			Name:        "run_task",
			Description: "Runs a natural-language task against the active provider and returns the finished task",
			Handler:     s.handleRunTask,
			Parameters:  RunTaskParams{},
		},
		{
			Name:        "list_providers",
			Description: "Lists the registered providers and which one is active",
			Handler:     s.handleListProviders,
			Parameters:  struct{}{},
		},
		{
			Name:        "activate_provider",
			Description: "Activates the named provider, stopping the previous one",
			Handler:     s.handleActivateProvider,
			Parameters:  ActivateProviderParams{},
		},
		{
			Name:        "get_task",
			Description: "Gets a finished task by ID",
			Handler:     s.handleGetTask,
			Parameters:  TaskIDParams{},
		},
		{
			Name:        "list_tasks",
			Description: "Lists all tasks finished during this run",
			Handler:     s.handleListTasks,
			Parameters:  struct{}{},
		},
		{
			Name:        "schedule_task",
			Description: "Registers a cron schedule that submits the task description on every tick",
			Handler:     s.handleScheduleTask,
			Parameters:  ScheduleTaskParams{},
		},
		{
			Name:        "list_schedules",
			Description: "Lists the registered schedules",
			Handler:     s.handleListSchedules,
			Parameters:  struct{}{},
		},
		{
			Name:        "remove_schedule",
			Description: "Removes a schedule by ID",
			Handler:     s.handleRemoveSchedule,
			Parameters:  ScheduleIDParams{},
		},
	}

	for _, tool := range tools {
		registerToolWithError(s.server, tool)
	}
}

// registerToolWithError registers a tool with error handling
func registerToolWithError(srv *server.Server, def ToolDefinition) {
	tool, err := protocol.NewTool(def.Name, def.Description, def.Parameters)
	if err != nil {
		// In a real scenario, we might want to handle this differently,
		// but for now we'll panic since this is a critical error
		// that should never happen
		panic(err)
	}

	srv.RegisterTool(tool, def.Handler)
}
