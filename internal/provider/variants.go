// SPDX-License-Identifier: AGPL-3.0-only
package provider

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jolks/pipetask/internal/errors"
	"github.com/jolks/pipetask/internal/logging"
	"github.com/jolks/pipetask/internal/model"
)

// Known provider kinds
const (
	KindClaude = "claude"
	KindOllama = "ollama"
	KindOpenAI = "openai"
	KindNull   = "null"
)

// kindSpec defines the three points a process-backed variant customizes:
// spawn arguments, readiness markers, and prompt framing.
type kindSpec struct {
	command      string
	defaultModel string
	args         func(model string) []string
	// markers are byte patterns on stdout that resolve readiness early
	markers []string
	// readyDelay is the fallback that resolves readiness when no marker shows
	readyDelay time.Duration
	frame      func(text string) string
}

var kindSpecs = map[string]kindSpec{
	KindClaude: {
		command:      "claude",
		defaultModel: "claude-sonnet-4-20250514",
		args:         func(string) []string { return nil },
		markers:      []string{"? for shortcuts", "Human:"},
		readyDelay:   3 * time.Second,
		frame:        func(text string) string { return text },
	},
	KindOllama: {
		command:      "ollama",
		defaultModel: "llama3",
		args:         func(model string) []string { return []string{"run", model} },
		markers:      []string{">>>"},
		readyDelay:   10 * time.Second,
		// The ollama REPL submits on newline; triple quotes keep a
		// multi-line prompt together as one request.
		frame: func(text string) string {
			return fmt.Sprintf("\"\"\"%s\"\"\"", text)
		},
	},
	KindOpenAI: {
		command:      "openai",
		defaultModel: "gpt-4o",
		args:         func(model string) []string { return []string{"chat", "--model", model} },
		markers:      []string{"> "},
		readyDelay:   2 * time.Second,
		frame: func(text string) string {
			return "You are a precise task execution agent. Reply with the result only.\n\n" + text
		},
	},
}

// procProvider is a process-backed provider. All variants share the same
// lifecycle and prompt protocol and differ only in their kindSpec.
type procProvider struct {
	cfg    Config
	spec   kindSpec
	notify Notify
	logger *logging.Logger

	mu    sync.Mutex
	h     *handle
	ready bool
}

// newProcProvider fills config gaps from the kind's defaults.
func newProcProvider(kind string, cfg Config, notify Notify) *procProvider {
	spec := kindSpecs[kind]
	cfg.Name = kind
	if cfg.Command == "" {
		cfg.Command = spec.command
	}
	if cfg.Model == "" {
		cfg.Model = spec.defaultModel
	}
	if cfg.Args == nil {
		cfg.Args = spec.args(cfg.Model)
	}
	if notify == nil {
		notify = func(model.Event) {}
	}
	return &procProvider{
		cfg:    cfg,
		spec:   spec,
		notify: notify,
		logger: logging.GetDefaultLogger(),
	}
}

// NewClaudeProvider creates a provider running the Claude Code CLI
func NewClaudeProvider(cfg Config, notify Notify) Provider {
	return newProcProvider(KindClaude, cfg, notify)
}

// NewOllamaProvider creates a provider running an ollama REPL
func NewOllamaProvider(cfg Config, notify Notify) Provider {
	return newProcProvider(KindOllama, cfg, notify)
}

// NewOpenAIProvider creates a provider running the OpenAI CLI
func NewOpenAIProvider(cfg Config, notify Notify) Provider {
	return newProcProvider(KindOpenAI, cfg, notify)
}

// Name implements Provider.Name
func (p *procProvider) Name() string {
	return p.cfg.Name
}

// Ready implements Provider.Ready
func (p *procProvider) Ready() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.h != nil && p.ready
}

// Start implements Provider.Start. After the spawn succeeds the readiness
// protocol races a marker match on the output pipe against the kind's
// fallback delay; whichever resolves first marks the instance ready.
func (p *procProvider) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.h != nil {
		p.mu.Unlock()
		return errors.AlreadyRunning(p.cfg.Name)
	}
	p.mu.Unlock()

	h, err := spawn(p.cfg.Command, p.cfg.Args...)
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.h = h
	p.mu.Unlock()

	go p.monitorExit(h)

	if err := p.awaitReady(ctx, h); err != nil {
		// A startup failure is not Stop-initiated: clear our reference,
		// terminate, and leave reporting the exit to the monitor.
		p.mu.Lock()
		if p.h == h {
			p.h = nil
		}
		p.mu.Unlock()
		h.terminate()
		return err
	}

	p.mu.Lock()
	p.ready = true
	p.mu.Unlock()

	p.logger.Infof("provider %s ready (pid %d)", p.cfg.Name, h.cmd.Process.Pid)
	p.notify(model.Event{Type: model.EventProviderReady, Time: time.Now(), Provider: p.cfg.Name})
	return nil
}

// awaitReady scans startup output for a readiness marker with the fallback
// delay as an upper bound. The fallback always resolves readiness, so this
// only returns an error when the caller's context ends or the process dies
// during startup.
func (p *procProvider) awaitReady(ctx context.Context, h *handle) error {
	timer := time.NewTimer(p.spec.readyDelay)
	defer timer.Stop()

	// Rolling tail of startup output; markers never span more than this.
	var tail []byte
	const tailMax = 8192

	for {
		select {
		case chunk, ok := <-h.out:
			if !ok {
				// output pipe closed during startup; the exit monitor
				// handles cleanup, report the failure here
				select {
				case <-h.done:
					return errors.Backend(fmt.Sprintf("process exited with code %d during startup: %s",
						h.exitCode(), strings.TrimSpace(h.stderrText())))
				case <-time.After(time.Second):
					return errors.Backend("output pipe closed during startup")
				}
			}
			tail = append(tail, chunk...)
			if len(tail) > tailMax {
				tail = tail[len(tail)-tailMax:]
			}
			for _, m := range p.spec.markers {
				if bytes.Contains(tail, []byte(m)) {
					p.logger.Debugf("provider %s matched readiness marker %q", p.cfg.Name, m)
					return nil
				}
			}
		case <-timer.C:
			p.logger.Debugf("provider %s ready via fallback delay %s", p.cfg.Name, p.spec.readyDelay)
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// monitorExit clears runtime state once the process has exited. Whether
// the exit is reported depends on the handle's stop flag, not on who
// cleared the state first: only a Stop-initiated exit stays silent.
func (p *procProvider) monitorExit(h *handle) {
	<-h.done

	p.mu.Lock()
	if p.h == h {
		p.h = nil
		p.ready = false
	}
	p.mu.Unlock()

	if h.wasStopRequested() {
		return
	}

	p.logger.Warnf("provider %s process exited with code %d", p.cfg.Name, h.exitCode())
	p.notify(model.Event{
		Type:     model.EventProviderClosed,
		Time:     time.Now(),
		Provider: p.cfg.Name,
		ExitCode: h.exitCode(),
	})
}

// Send implements Provider.Send. One call is one full request/response
// cycle: write the framed text, then accumulate output until the output
// pipe signals end-of-stream or the timeout elapses.
func (p *procProvider) Send(ctx context.Context, text string, opts SendOptions) (string, error) {
	p.mu.Lock()
	h := p.h
	ready := p.ready
	p.mu.Unlock()

	if h == nil || !ready {
		return "", errors.NotReady(p.cfg.Name)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultSendTimeout
	}

	if err := h.write(p.spec.frame(text)); err != nil {
		return "", errors.Backend(err.Error())
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var buf bytes.Buffer
	for {
		select {
		case chunk, ok := <-h.out:
			if !ok {
				// Give the exit a moment to settle so any final stderr
				// bytes are in the buffer before the verdict.
				select {
				case <-h.done:
				case <-time.After(500 * time.Millisecond):
				}
				if stderr := strings.TrimSpace(h.stderrText()); stderr != "" {
					return "", errors.Backend(stderr)
				}
				return strings.TrimSpace(buf.String()), nil
			}
			buf.Write(chunk)
		case <-timer.C:
			return "", errors.Timeout(timeout)
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

// Stop implements Provider.Stop. Clearing state is unconditional so a
// second call is a no-op.
func (p *procProvider) Stop() error {
	p.mu.Lock()
	h := p.h
	p.h = nil
	p.ready = false
	p.mu.Unlock()

	if h != nil {
		h.markStopRequested()
		h.terminate()
	}
	return nil
}
