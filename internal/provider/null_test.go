// SPDX-License-Identifier: AGPL-3.0-only
package provider

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/jolks/pipetask/internal/errors"
	"github.com/jolks/pipetask/internal/model"
)

func TestNullProviderContract(t *testing.T) {
	var ready bool
	p := NewNullProvider(Config{}, func(e model.Event) {
		if e.Type == model.EventProviderReady {
			ready = true
		}
	})

	if _, err := p.Send(context.Background(), "hi", SendOptions{}); !errors.IsNotReady(err) {
		t.Fatalf("Send before Start err = %v, want not-ready", err)
	}

	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !p.Ready() {
		t.Error("not ready after Start")
	}
	if !ready {
		t.Error("no providerReady notification")
	}

	if err := p.Start(context.Background()); !errors.HasCode(err, errors.CodeAlreadyRunning) {
		t.Errorf("second Start err = %v, want already-running", err)
	}

	if err := p.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := p.Stop(); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
	if p.Ready() {
		t.Error("ready after Stop")
	}
}

func TestNullProviderRepliesAreDeterministic(t *testing.T) {
	p := NewNullProvider(Config{}, nil)
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Stop()

	planReq := `Break this task into steps. Respond with JSON: {"analysis": ..., "steps": [...]}`
	first, err := p.Send(context.Background(), planReq, SendOptions{})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	second, err := p.Send(context.Background(), planReq, SendOptions{})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if first != second {
		t.Error("plan replies differ between calls")
	}
	if !strings.Contains(first, `"steps"`) {
		t.Errorf("plan reply %q carries no steps payload", first)
	}

	stepOut, err := p.Send(context.Background(), "Execute step 1", SendOptions{})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !strings.HasPrefix(stepOut, "Done:") {
		t.Errorf("step reply = %q", stepOut)
	}
}

func TestNullProviderHonorsContext(t *testing.T) {
	p := NewNullProvider(Config{}, nil)
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := p.Send(ctx, "hi", SendOptions{}); err == nil {
		t.Error("expected context error for cancelled send")
	}
}
