// SPDX-License-Identifier: AGPL-3.0-only
package engine

import (
	"sync"

	"github.com/jolks/pipetask/internal/errors"
	"github.com/jolks/pipetask/internal/model"
)

// History is the in-memory record of finished tasks for the current run.
// Tasks are kept in a map for lookup and a slice for stable insertion-order
// iteration. Only terminal tasks are added, so entries never mutate after
// insertion and can be handed out directly.
type History struct {
	mu    sync.Mutex
	tasks map[string]*model.Task
	order []string
}

// NewHistory creates an empty history
func NewHistory() *History {
	return &History{tasks: make(map[string]*model.Task)}
}

// Add records a finished task
func (h *History) Add(t *model.Task) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.tasks[t.ID]; !exists {
		h.order = append(h.order, t.ID)
	}
	h.tasks[t.ID] = t
}

// Get returns a recorded task by ID
func (h *History) Get(id string) (*model.Task, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	t, ok := h.tasks[id]
	if !ok {
		return nil, errors.NotFound("task", id)
	}
	return t, nil
}

// List returns all recorded tasks in insertion order
func (h *History) List() []*model.Task {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*model.Task, 0, len(h.order))
	for _, id := range h.order {
		out = append(out, h.tasks[id])
	}
	return out
}

// Len returns the number of recorded tasks
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.order)
}
