// SPDX-License-Identifier: AGPL-3.0-only

// Package engine drives one task at a time through the plan, execute and
// summarize pipeline against the active provider.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jolks/pipetask/internal/config"
	"github.com/jolks/pipetask/internal/errors"
	"github.com/jolks/pipetask/internal/logging"
	"github.com/jolks/pipetask/internal/model"
	"github.com/jolks/pipetask/internal/provider"
)

// Engine runs the three-phase task state machine. One logical task runs at
// a time; Execute returns an error if a task is already in flight.
type Engine struct {
	registry *provider.Registry
	bus      *Bus
	cfg      config.EngineConfig
	logger   *logging.Logger

	mu      sync.Mutex
	current *model.Task
	history *History
}

// New creates an engine using the given registry and event bus
func New(registry *provider.Registry, bus *Bus, cfg config.EngineConfig, logger *logging.Logger) *Engine {
	if logger == nil {
		logger = logging.GetDefaultLogger()
	}
	if bus == nil {
		bus = NewBus()
	}
	return &Engine{
		registry: registry,
		bus:      bus,
		cfg:      cfg,
		logger:   logger,
		history:  NewHistory(),
	}
}

// Bus returns the engine's event bus for subscribing to notifications
func (e *Engine) Bus() *Bus {
	return e.bus
}

// Current returns the in-flight task, or nil
func (e *Engine) Current() *model.Task {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current
}

// History returns all finished tasks of this run in completion order
func (e *Engine) History() []*model.Task {
	return e.history.List()
}

// Task returns a finished task by ID
func (e *Engine) Task(id string) (*model.Task, error) {
	return e.history.Get(id)
}

// Execute drives description through plan, execute and summarize and
// returns the finished task. The returned error is non-nil exactly when
// the task failed; the task itself carries the same message and the
// timestamps. The active provider is left running either way.
func (e *Engine) Execute(ctx context.Context, description string) (*model.Task, error) {
	if description == "" {
		return nil, errors.InvalidInput("task description is required")
	}

	task := model.NewTask(description, e.cfg.WorkDir)

	e.mu.Lock()
	if e.current != nil {
		e.mu.Unlock()
		return nil, errors.AlreadyExists("running task", e.current.ID)
	}
	e.current = task
	e.mu.Unlock()

	e.logger.Infof("task %s started: %s", task.ID, truncate(description, 120))
	e.bus.Publish(model.Event{Type: model.EventTaskStarted, Task: task.Snapshot()})

	active, err := e.registry.Active()
	if err != nil {
		return e.fail(task, err)
	}

	if err := e.plan(ctx, active, task); err != nil {
		return e.fail(task, err)
	}

	if err := e.executeSteps(ctx, active, task); err != nil {
		return e.fail(task, err)
	}

	if err := e.finalize(ctx, active, task); err != nil {
		return e.fail(task, err)
	}

	task.EndTime = time.Now()
	e.setStatus(task, model.StatusCompleted)
	e.bus.Publish(model.Event{Type: model.EventTaskCompleted, Task: task.Snapshot()})
	e.finish(task)

	e.logger.Infof("task %s completed: %d/%d steps succeeded",
		task.ID, task.CompletedResults(), len(task.Results))
	return task, nil
}

// plan asks the provider for a step breakdown. A reply that yields no
// parseable plan is recovered locally with the fixed fallback plan and
// never fails the task.
func (e *Engine) plan(ctx context.Context, p provider.Provider, task *model.Task) error {
	reply, err := p.Send(ctx, planPrompt(task.Description), provider.SendOptions{Timeout: e.cfg.PlanTimeout})
	if err != nil {
		return fmt.Errorf("planning: %w", err)
	}

	if parsed, perr := parsePlan(reply); perr == nil {
		task.Steps = parsed.Steps
		e.logger.Debugf("task %s planned: %d steps (%s)", task.ID, len(parsed.Steps), parsed.Complexity)
	} else {
		task.Steps = fallbackPlan(task.Description)
		e.logger.Warnf("task %s: unparseable plan (%v), using fallback", task.ID, perr)
	}

	e.setStatus(task, model.StatusExecuting)
	return nil
}

// executeSteps runs the planned steps strictly in order. A failed optional
// step is recorded and tolerated; a failed non-optional step aborts the
// task with no further steps attempted.
func (e *Engine) executeSteps(ctx context.Context, p provider.Provider, task *model.Task) error {
	for i, step := range task.Steps {
		result := model.StepResult{
			StepID:    step.ID,
			Status:    model.StepRunning,
			StartTime: time.Now(),
		}

		out, err := p.Send(ctx, stepPrompt(task, step, task.CompletedResults()),
			provider.SendOptions{Timeout: e.cfg.StepTimeout})
		result.EndTime = time.Now()
		if err != nil {
			result.Status = model.StepFailed
			result.Error = err.Error()
		} else {
			result.Status = model.StepCompleted
			result.Output = out
		}

		task.Results = append(task.Results, result)
		// observers get a point-in-time copy, never the slices still
		// being appended to
		snap := task.Snapshot()
		e.bus.Publish(model.Event{
			Type:   model.EventStepCompleted,
			Task:   snap,
			Step:   &snap.Steps[i],
			Result: &snap.Results[len(snap.Results)-1],
		})

		if result.Status == model.StepFailed {
			if !step.Optional {
				return fmt.Errorf("step %d (%s) failed: %s", step.ID, step.Description, result.Error)
			}
			e.logger.Warnf("task %s: optional step %d failed, continuing", task.ID, step.ID)
		}
	}
	return nil
}

// finalize compiles the summary from the provider's report.
func (e *Engine) finalize(ctx context.Context, p provider.Provider, task *model.Task) error {
	e.setStatus(task, model.StatusFinalizing)

	reply, err := p.Send(ctx, summaryPrompt(task), provider.SendOptions{Timeout: e.cfg.SummaryTimeout})
	if err != nil {
		return fmt.Errorf("summarizing: %w", err)
	}
	task.Summary = reply
	return nil
}

// fail marks the task failed and records it.
func (e *Engine) fail(task *model.Task, err error) (*model.Task, error) {
	task.Error = err.Error()
	task.EndTime = time.Now()
	e.setStatus(task, model.StatusFailed)
	e.bus.Publish(model.Event{Type: model.EventTaskFailed, Task: task.Snapshot(), Error: task.Error})
	e.finish(task)

	e.logger.Errorf("task %s failed: %v", task.ID, err)
	return task, err
}

// setStatus transitions the task and publishes the change.
func (e *Engine) setStatus(task *model.Task, status model.TaskStatus) {
	task.Status = status
	e.bus.Publish(model.Event{Type: model.EventTaskStatusChanged, Task: task.Snapshot()})
}

// finish appends the task to history and clears the current reference.
func (e *Engine) finish(task *model.Task) {
	e.history.Add(task)
	e.mu.Lock()
	e.current = nil
	e.mu.Unlock()
}
