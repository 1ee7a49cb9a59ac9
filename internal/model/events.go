// SPDX-License-Identifier: AGPL-3.0-only
package model

import "time"

// EventType identifies a lifecycle notification
type EventType string

// Event types emitted by the engine and the provider layer
const (
	// EventTaskStarted fires when a task enters the planning phase
	EventTaskStarted EventType = "taskStarted"
	// EventTaskStatusChanged fires on every task status transition
	EventTaskStatusChanged EventType = "taskStatusChanged"
	// EventStepCompleted fires after each step attempt, success or failure
	EventStepCompleted EventType = "stepCompleted"
	// EventTaskCompleted fires when a task reaches completed
	EventTaskCompleted EventType = "taskCompleted"
	// EventTaskFailed fires when a task reaches failed
	EventTaskFailed EventType = "taskFailed"
	// EventProviderReady fires when a provider resolves its readiness protocol
	EventProviderReady EventType = "providerReady"
	// EventProviderClosed fires when a provider process exits abnormally
	EventProviderClosed EventType = "providerClosed"
)

// Event is one typed lifecycle notification. Only the fields relevant to
// the event type are set.
type Event struct {
	Type EventType `json:"type"`
	Time time.Time `json:"time"`

	Task   *Task       `json:"task,omitempty"`
	Step   *Step       `json:"step,omitempty"`
	Result *StepResult `json:"result,omitempty"`

	// Provider is the provider name for provider events
	Provider string `json:"provider,omitempty"`
	// ExitCode accompanies providerClosed
	ExitCode int `json:"exit_code,omitempty"`
	// Error accompanies taskFailed
	Error string `json:"error,omitempty"`
}
