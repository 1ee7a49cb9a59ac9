package server

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/ThinkInAIXYZ/go-mcp/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jolks/pipetask/internal/config"
	"github.com/jolks/pipetask/internal/errors"
	"github.com/jolks/pipetask/internal/logging"
	"github.com/jolks/pipetask/internal/model"
	"github.com/jolks/pipetask/internal/provider"
	"github.com/jolks/pipetask/internal/scheduler"
)

type fakeRunner struct {
	tasks    map[string]*model.Task
	executed []string
	failWith error
}

func (f *fakeRunner) Execute(ctx context.Context, description string) (*model.Task, error) {
	f.executed = append(f.executed, description)
	if f.failWith != nil {
		return nil, f.failWith
	}
	task := model.NewTask(description, "")
	task.Status = model.StatusCompleted
	task.Summary = "done"
	return task, nil
}

func (f *fakeRunner) History() []*model.Task {
	out := make([]*model.Task, 0, len(f.tasks))
	for _, t := range f.tasks {
		out = append(out, t)
	}
	return out
}

func (f *fakeRunner) Task(id string) (*model.Task, error) {
	t, ok := f.tasks[id]
	if !ok {
		return nil, errors.NotFound("task", id)
	}
	return t, nil
}

type fakeCatalog struct {
	names     []string
	active    string
	activated []string
	failWith  error
}

func (f *fakeCatalog) Available() []string { return f.names }
func (f *fakeCatalog) ActiveName() string  { return f.active }

func (f *fakeCatalog) Activate(ctx context.Context, name string, cfg provider.Config) (provider.Provider, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	f.activated = append(f.activated, name)
	f.active = name
	return nil, nil
}

type fakeSchedules struct {
	added   []string
	removed []string
}

func (f *fakeSchedules) Add(name, cronExpr, description string) (*scheduler.Schedule, error) {
	if cronExpr == "" || description == "" {
		return nil, errors.InvalidInput("cron and description are required")
	}
	f.added = append(f.added, description)
	return &scheduler.Schedule{ID: "sched_1", Name: name, Cron: cronExpr, Description: description}, nil
}

func (f *fakeSchedules) Remove(id string) error {
	if id == "missing" {
		return errors.NotFound("schedule", id)
	}
	f.removed = append(f.removed, id)
	return nil
}

func (f *fakeSchedules) List() []*scheduler.Schedule { return nil }

func newTestServer(runner *fakeRunner, catalog *fakeCatalog, schedules *fakeSchedules) *MCPServer {
	return &MCPServer{
		runner:    runner,
		providers: catalog,
		schedules: schedules,
		logger:    logging.GetDefaultLogger(),
	}
}

func request(t *testing.T, params interface{}) *protocol.CallToolRequest {
	t.Helper()
	raw, err := json.Marshal(params)
	require.NoError(t, err)
	return &protocol.CallToolRequest{RawArguments: raw}
}

func textContent(t *testing.T, result *protocol.CallToolResult) string {
	t.Helper()
	require.Len(t, result.Content, 1)
	text, ok := result.Content[0].(*protocol.TextContent)
	require.True(t, ok, "expected text content")
	return text.Text
}

func TestHandleRunTask(t *testing.T) {
	runner := &fakeRunner{}
	catalog := &fakeCatalog{active: "null"}
	srv := newTestServer(runner, catalog, &fakeSchedules{})

	result, err := srv.handleRunTask(context.Background(), request(t, RunTaskParams{Description: "list files"}))
	require.NoError(t, err)

	var task model.Task
	require.NoError(t, json.Unmarshal([]byte(textContent(t, result)), &task))
	assert.Equal(t, model.StatusCompleted, task.Status)
	assert.Equal(t, []string{"list files"}, runner.executed)
	assert.Empty(t, catalog.activated, "no provider switch requested")
}

func TestHandleRunTaskActivatesRequestedProvider(t *testing.T) {
	runner := &fakeRunner{}
	catalog := &fakeCatalog{active: "null"}
	srv := newTestServer(runner, catalog, &fakeSchedules{})

	_, err := srv.handleRunTask(context.Background(), request(t, RunTaskParams{
		Description: "list files",
		Provider:    "claude",
	}))
	require.NoError(t, err)
	assert.Equal(t, []string{"claude"}, catalog.activated)
}

func TestHandleRunTaskRejectsEmptyDescription(t *testing.T) {
	srv := newTestServer(&fakeRunner{}, &fakeCatalog{}, &fakeSchedules{})

	_, err := srv.handleRunTask(context.Background(), request(t, RunTaskParams{Description: "  "}))
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeInvalidInput))
}

func TestHandleRunTaskReportsRunnerError(t *testing.T) {
	runner := &fakeRunner{failWith: errors.NoActiveProvider()}
	srv := newTestServer(runner, &fakeCatalog{}, &fakeSchedules{})

	_, err := srv.handleRunTask(context.Background(), request(t, RunTaskParams{Description: "x"}))
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeNoActiveProvider))
}

func TestHandleListProviders(t *testing.T) {
	catalog := &fakeCatalog{names: []string{"claude", "null"}, active: "claude"}
	srv := newTestServer(&fakeRunner{}, catalog, &fakeSchedules{})

	result, err := srv.handleListProviders(context.Background(), request(t, struct{}{}))
	require.NoError(t, err)

	var got struct {
		Providers []string `json:"providers"`
		Active    string   `json:"active"`
	}
	require.NoError(t, json.Unmarshal([]byte(textContent(t, result)), &got))
	assert.Equal(t, []string{"claude", "null"}, got.Providers)
	assert.Equal(t, "claude", got.Active)
}

func TestHandleActivateProvider(t *testing.T) {
	catalog := &fakeCatalog{}
	srv := newTestServer(&fakeRunner{}, catalog, &fakeSchedules{})

	result, err := srv.handleActivateProvider(context.Background(), request(t, ActivateProviderParams{Name: "ollama"}))
	require.NoError(t, err)
	assert.Contains(t, textContent(t, result), "ollama")
	assert.Equal(t, []string{"ollama"}, catalog.activated)

	_, err = srv.handleActivateProvider(context.Background(), request(t, ActivateProviderParams{}))
	require.Error(t, err)
}

func TestHandleActivateProviderUnknown(t *testing.T) {
	catalog := &fakeCatalog{failWith: errors.UnknownProvider("gpt5")}
	srv := newTestServer(&fakeRunner{}, catalog, &fakeSchedules{})

	_, err := srv.handleActivateProvider(context.Background(), request(t, ActivateProviderParams{Name: "gpt5"}))
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeUnknownProvider))
}

func TestHandleGetTask(t *testing.T) {
	task := model.NewTask("inspect logs", "")
	runner := &fakeRunner{tasks: map[string]*model.Task{task.ID: task}}
	srv := newTestServer(runner, &fakeCatalog{}, &fakeSchedules{})

	result, err := srv.handleGetTask(context.Background(), request(t, TaskIDParams{ID: task.ID}))
	require.NoError(t, err)

	var got model.Task
	require.NoError(t, json.Unmarshal([]byte(textContent(t, result)), &got))
	assert.Equal(t, task.ID, got.ID)

	_, err = srv.handleGetTask(context.Background(), request(t, TaskIDParams{ID: "task_0_missing"}))
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))

	_, err = srv.handleGetTask(context.Background(), request(t, TaskIDParams{}))
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeInvalidInput))
}

func TestHandleScheduleLifecycle(t *testing.T) {
	schedules := &fakeSchedules{}
	srv := newTestServer(&fakeRunner{}, &fakeCatalog{}, schedules)

	result, err := srv.handleScheduleTask(context.Background(), request(t, ScheduleTaskParams{
		Name:        "nightly",
		Cron:        "0 0 * * *",
		Description: "clean tmp files",
	}))
	require.NoError(t, err)
	assert.Contains(t, textContent(t, result), "sched_1")
	assert.Equal(t, []string{"clean tmp files"}, schedules.added)

	_, err = srv.handleRemoveSchedule(context.Background(), request(t, ScheduleIDParams{ID: "sched_1"}))
	require.NoError(t, err)
	assert.Equal(t, []string{"sched_1"}, schedules.removed)

	_, err = srv.handleRemoveSchedule(context.Background(), request(t, ScheduleIDParams{ID: "missing"}))
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestNewMCPServerRejectsUnknownTransport(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Server.TransportMode = "carrier-pigeon"

	_, err := NewMCPServer(cfg, &fakeRunner{}, &fakeCatalog{}, &fakeSchedules{})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeInvalidInput))
}

func TestExtractParamsRejectsMalformedJSON(t *testing.T) {
	req := &protocol.CallToolRequest{RawArguments: []byte(`{"id":`)}
	var params TaskIDParams
	err := extractParams(req, &params)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeInvalidInput), fmt.Sprintf("got %v", err))
}
