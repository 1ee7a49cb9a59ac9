// SPDX-License-Identifier: AGPL-3.0-only

// Package scheduler submits recurring agent tasks to the engine on cron
// expressions. Schedules live in memory only and last for the current run.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jolks/pipetask/internal/config"
	"github.com/jolks/pipetask/internal/errors"
	"github.com/jolks/pipetask/internal/logging"
	"github.com/jolks/pipetask/internal/model"
	"github.com/robfig/cron/v3"
)

// Runner executes one task description end to end. Implemented by the engine.
type Runner interface {
	Execute(ctx context.Context, description string) (*model.Task, error)
}

// Schedule is one recurring task submission
type Schedule struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Cron        string    `json:"cron"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	LastRun     time.Time `json:"last_run,omitempty"`
	NextRun     time.Time `json:"next_run,omitempty"`
	// LastTaskID points at the most recent task this schedule produced
	LastTaskID string `json:"last_task_id,omitempty"`
}

// Scheduler manages cron-driven task submissions
type Scheduler struct {
	cron   *cron.Cron
	runner Runner
	cfg    *config.SchedulerConfig
	logger *logging.Logger

	mu        sync.RWMutex
	schedules map[string]*Schedule
	entryIDs  map[string]cron.EntryID
	order     []string
}

// New creates a scheduler submitting to runner
func New(cfg *config.SchedulerConfig, runner Runner, logger *logging.Logger) *Scheduler {
	if logger == nil {
		logger = logging.GetDefaultLogger()
	}
	c := cron.New(
		cron.WithParser(cron.NewParser(
			cron.SecondOptional|cron.Minute|cron.Hour|cron.Dom|cron.Month|cron.Dow|cron.Descriptor)),
		cron.WithChain(
			cron.Recover(cron.DefaultLogger),
		),
	)
	return &Scheduler{
		cron:      c,
		runner:    runner,
		cfg:       cfg,
		logger:    logger,
		schedules: make(map[string]*Schedule),
		entryIDs:  make(map[string]cron.EntryID),
	}
}

// Start begins firing schedules. Stop is called when ctx ends.
func (s *Scheduler) Start(ctx context.Context) {
	s.cron.Start()
	go func() {
		<-ctx.Done()
		s.Stop()
	}()
}

// Stop halts the cron loop; already-running submissions finish on their own
func (s *Scheduler) Stop() {
	s.cron.Stop()
}

// Add registers a new schedule and returns it with its generated ID
func (s *Scheduler) Add(name, cronExpr, description string) (*Schedule, error) {
	if cronExpr == "" || description == "" {
		return nil, errors.InvalidInput("cron expression and description are required")
	}

	sched := &Schedule{
		ID:          fmt.Sprintf("sched_%s", uuid.NewString()[:8]),
		Name:        name,
		Cron:        cronExpr,
		Description: description,
		CreatedAt:   time.Now(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entryID, err := s.cron.AddFunc(cronExpr, func() { s.run(sched.ID) })
	if err != nil {
		return nil, errors.InvalidInput(fmt.Sprintf("invalid cron expression %q: %v", cronExpr, err))
	}

	s.schedules[sched.ID] = sched
	s.entryIDs[sched.ID] = entryID
	s.order = append(s.order, sched.ID)
	s.updateNextRunLocked(sched)

	s.logger.Infof("schedule %s added: %q at %s", sched.ID, description, cronExpr)
	return sched, nil
}

// Remove deletes a schedule
func (s *Scheduler) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.schedules[id]; !exists {
		return errors.NotFound("schedule", id)
	}
	if entryID, ok := s.entryIDs[id]; ok {
		s.cron.Remove(entryID)
		delete(s.entryIDs, id)
	}
	delete(s.schedules, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// Get returns a schedule by ID
func (s *Scheduler) Get(id string) (*Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sched, ok := s.schedules[id]
	if !ok {
		return nil, errors.NotFound("schedule", id)
	}
	copy := *sched
	return &copy, nil
}

// List returns all schedules in creation order
func (s *Scheduler) List() []*Schedule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Schedule, 0, len(s.order))
	for _, id := range s.order {
		copy := *s.schedules[id]
		out = append(out, &copy)
	}
	return out
}

// run fires one scheduled submission. Engine rejection (another task in
// flight) is logged and the tick skipped rather than queued: a recurring
// schedule gets another chance on its next tick.
func (s *Scheduler) run(id string) {
	s.mu.RLock()
	sched, ok := s.schedules[id]
	var description string
	if ok {
		description = sched.Description
	}
	s.mu.RUnlock()
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.DefaultTimeout)
	defer cancel()

	start := time.Now()
	task, err := s.runner.Execute(ctx, description)

	s.mu.Lock()
	if sched, ok = s.schedules[id]; ok {
		sched.LastRun = start
		if task != nil {
			sched.LastTaskID = task.ID
		}
		s.updateNextRunLocked(sched)
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Warnf("schedule %s run failed: %v", id, err)
		return
	}
	s.logger.Infof("schedule %s produced task %s", id, task.ID)
}

// updateNextRunLocked refreshes NextRun from the cron entry. Caller holds s.mu.
func (s *Scheduler) updateNextRunLocked(sched *Schedule) {
	entryID, ok := s.entryIDs[sched.ID]
	if !ok {
		return
	}
	for _, entry := range s.cron.Entries() {
		if entry.ID == entryID {
			sched.NextRun = entry.Next
			break
		}
	}
}
