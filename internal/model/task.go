// SPDX-License-Identifier: AGPL-3.0-only
package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TaskStatus represents the current phase of a task
type TaskStatus string

// Task status constants
const (
	// StatusPlanning indicates the task is being broken into steps
	StatusPlanning TaskStatus = "planning"
	// StatusExecuting indicates steps are being run in order
	StatusExecuting TaskStatus = "executing"
	// StatusFinalizing indicates the summary is being compiled
	StatusFinalizing TaskStatus = "finalizing"
	// StatusCompleted indicates the task finished with a summary
	StatusCompleted TaskStatus = "completed"
	// StatusFailed indicates the task stopped with an error
	StatusFailed TaskStatus = "failed"
)

// String returns the string representation of the status, making it easier to use in string contexts
func (s TaskStatus) String() string {
	return string(s)
}

// StepStatus represents the state of one step attempt
type StepStatus string

// Step status constants
const (
	// StepRunning indicates the step exchange is in flight
	StepRunning StepStatus = "running"
	// StepCompleted indicates the step produced output
	StepCompleted StepStatus = "completed"
	// StepFailed indicates the step exchange failed
	StepFailed StepStatus = "failed"
)

// StepType categorizes a planned step. Advisory only, never enforced.
type StepType string

// Known step types
const (
	StepTypeFile      StepType = "file"
	StepTypeAnalysis  StepType = "analysis"
	StepTypeCreation  StepType = "creation"
	StepTypeWeb       StepType = "web"
	StepTypeSystem    StepType = "system"
	StepTypeExecution StepType = "execution"
)

// Complexity is an advisory effort tag
type Complexity string

// Complexity levels
const (
	ComplexityLow    Complexity = "LOW"
	ComplexityMedium Complexity = "MEDIUM"
	ComplexityHigh   Complexity = "HIGH"
)

// Step is one planned unit of work within a task
type Step struct {
	// ID is the 1-based sequence number, unique within the task
	ID          int        `json:"id"`
	Description string     `json:"description"`
	Type        StepType   `json:"type"`
	Complexity  Complexity `json:"complexity"`
	// Optional governs failure policy: a failed optional step is tolerated
	Optional bool `json:"optional"`
	// Dependencies lists prior step IDs. Advisory, not scheduled on.
	Dependencies []int `json:"dependencies"`
}

// StepResult is the outcome of running one step
type StepResult struct {
	StepID    int        `json:"step_id"`
	Status    StepStatus `json:"status"`
	Output    string     `json:"output,omitempty"`
	Error     string     `json:"error,omitempty"`
	StartTime time.Time  `json:"start_time"`
	EndTime   time.Time  `json:"end_time"`
}

// Plan is the structured payload extracted from a planning reply
type Plan struct {
	Analysis      string     `json:"analysis"`
	Complexity    Complexity `json:"complexity"`
	EstimatedTime string     `json:"estimatedTime"`
	Steps         []Step     `json:"steps"`
}

// Task is one unit of work driven through plan, execute and summarize
type Task struct {
	ID          string     `json:"id"`
	Description string     `json:"description"`
	Status      TaskStatus `json:"status"`
	// Steps is fixed once planning completes
	Steps []Step `json:"steps"`
	// Results is appended as steps execute, order-aligned with Steps
	Results   []StepResult `json:"results"`
	WorkDir   string       `json:"work_dir,omitempty"`
	StartTime time.Time    `json:"start_time"`
	EndTime   time.Time    `json:"end_time,omitempty"`
	// Summary is set only on success
	Summary string `json:"summary,omitempty"`
	// Error is set only on failure
	Error string `json:"error,omitempty"`
}

// NewTask creates a task in the planning phase with a fresh unique ID
func NewTask(description, workDir string) *Task {
	return &Task{
		ID:          generateTaskID(),
		Description: description,
		Status:      StatusPlanning,
		WorkDir:     workDir,
		StartTime:   time.Now(),
	}
}

// generateTaskID builds a time-based ID with a random suffix so IDs stay
// unique even for tasks created within the same clock tick.
func generateTaskID() string {
	suffix := strings.SplitN(uuid.NewString(), "-", 2)[0]
	return fmt.Sprintf("task_%d_%s", time.Now().UnixNano(), suffix)
}

// CompletedResults counts results with completed status
func (t *Task) CompletedResults() int {
	n := 0
	for _, r := range t.Results {
		if r.Status == StepCompleted {
			n++
		}
	}
	return n
}

// SuccessRatio returns completed results over total results, 0 when empty
func (t *Task) SuccessRatio() float64 {
	if len(t.Results) == 0 {
		return 0
	}
	return float64(t.CompletedResults()) / float64(len(t.Results))
}

// Finished reports whether the task reached a terminal status
func (t *Task) Finished() bool {
	return t.Status == StatusCompleted || t.Status == StatusFailed
}

// Snapshot returns a copy safe to hand to observers while the task keeps
// mutating: the Steps and Results slices are copied so later appends on
// the live task cannot be seen through it.
func (t *Task) Snapshot() *Task {
	c := *t
	c.Steps = append([]Step(nil), t.Steps...)
	c.Results = append([]StepResult(nil), t.Results...)
	return &c
}
