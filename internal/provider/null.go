// SPDX-License-Identifier: AGPL-3.0-only
package provider

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jolks/pipetask/internal/errors"
	"github.com/jolks/pipetask/internal/model"
)

// Null provider timing, shaped like a fast real backend
const (
	nullReadyDelay = 200 * time.Millisecond
	nullSendDelay  = 150 * time.Millisecond
)

// nullPlanReply is the templated planning reply. The JSON payload sits
// inside prose the way a real backend's reply would.
const nullPlanReply = `Here is a plan for the task:

{
  "analysis": "The task was analyzed and split into preparatory and execution work.",
  "complexity": "LOW",
  "estimatedTime": "2 minutes",
  "steps": [
    {"id": 1, "description": "Analyze the task requirements", "type": "analysis", "complexity": "LOW", "optional": false, "dependencies": []},
    {"id": 2, "description": "Carry out the requested work", "type": "execution", "complexity": "MEDIUM", "optional": false, "dependencies": [1]},
    {"id": 3, "description": "Verify the outcome", "type": "analysis", "complexity": "LOW", "optional": true, "dependencies": [2]}
  ]
}`

// NullProvider never spawns a process. It produces templated text after a
// simulated delay and honors the same start/send/stop contract and
// readiness timing shape as the process-backed variants, so callers cannot
// distinguish it structurally except for the absence of a managed process.
type NullProvider struct {
	cfg    Config
	notify Notify

	mu      sync.Mutex
	started bool
	ready   bool
}

// NewNullProvider creates the fallback provider. It is always available.
func NewNullProvider(cfg Config, notify Notify) Provider {
	cfg.Name = KindNull
	if cfg.Model == "" {
		cfg.Model = "null"
	}
	if notify == nil {
		notify = func(model.Event) {}
	}
	return &NullProvider{cfg: cfg, notify: notify}
}

// Name implements Provider.Name
func (p *NullProvider) Name() string {
	return p.cfg.Name
}

// Ready implements Provider.Ready
func (p *NullProvider) Ready() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ready
}

// Start implements Provider.Start with a simulated readiness delay
func (p *NullProvider) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return errors.AlreadyRunning(p.cfg.Name)
	}
	p.started = true
	p.mu.Unlock()

	select {
	case <-time.After(nullReadyDelay):
	case <-ctx.Done():
		p.mu.Lock()
		p.started = false
		p.mu.Unlock()
		return ctx.Err()
	}

	p.mu.Lock()
	p.ready = true
	p.mu.Unlock()

	p.notify(model.Event{Type: model.EventProviderReady, Time: time.Now(), Provider: p.cfg.Name})
	return nil
}

// Send implements Provider.Send with deterministic templated replies
func (p *NullProvider) Send(ctx context.Context, text string, opts SendOptions) (string, error) {
	p.mu.Lock()
	ready := p.ready
	p.mu.Unlock()
	if !ready {
		return "", errors.NotReady(p.cfg.Name)
	}

	select {
	case <-time.After(nullSendDelay):
	case <-ctx.Done():
		return "", ctx.Err()
	}

	return p.reply(text), nil
}

// reply picks a template by recognizing the request shape.
func (p *NullProvider) reply(text string) string {
	switch {
	case strings.Contains(text, `"steps"`):
		return nullPlanReply
	case strings.Contains(text, "success ratio"):
		return "All requested work was carried out. Every step completed without issues."
	default:
		excerpt := text
		if i := strings.IndexByte(excerpt, '\n'); i >= 0 {
			excerpt = excerpt[:i]
		}
		if len(excerpt) > 80 {
			excerpt = excerpt[:80]
		}
		return fmt.Sprintf("Done: %s", excerpt)
	}
}

// Stop implements Provider.Stop; repeated calls are no-ops
func (p *NullProvider) Stop() error {
	p.mu.Lock()
	p.started = false
	p.ready = false
	p.mu.Unlock()
	return nil
}
