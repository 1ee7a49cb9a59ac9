// SPDX-License-Identifier: AGPL-3.0-only

// Package provider manages external language-model backends reached over
// standard input/output pipes: spawning, readiness detection, one
// request/response exchange per call, and termination.
package provider

import (
	"context"
	"os/exec"
	"time"

	"github.com/jolks/pipetask/internal/model"
)

// DefaultSendTimeout bounds a Send call when the caller passes no timeout
const DefaultSendTimeout = 30 * time.Second

// Config is the immutable identity of a backend
type Config struct {
	// Name is the unique provider key ("claude", "ollama", "openai", "null")
	Name string `json:"name"`
	// Command is the executable to spawn; empty means the kind's default
	Command string `json:"command"`
	// Args are passed at spawn; empty means the kind's default arguments
	Args []string `json:"args"`
	// Model is the model identifier the backend should use
	Model string `json:"model"`
}

// SendOptions tunes one Send exchange
type SendOptions struct {
	// Timeout bounds the exchange; zero means DefaultSendTimeout
	Timeout time.Duration
}

// Notify receives provider lifecycle events. Implementations must not block.
type Notify func(model.Event)

// Provider is one backend instance. Implementations own at most one process
// at a time. Send calls on the same instance must be serialized by the
// caller: the external process state would interleave nondeterministically
// otherwise.
type Provider interface {
	// Name returns the provider's unique key
	Name() string

	// Start spawns the backend and runs the readiness protocol. It fails
	// with an already-running error if a process handle exists.
	Start(ctx context.Context) error

	// Send writes text to the backend and returns the trimmed reply. It
	// fails with a not-ready error when no ready process exists, a timeout
	// error when the bound elapses, and a backend error when the process
	// wrote to its error pipe before end-of-stream.
	Send(ctx context.Context, text string, opts SendOptions) (string, error)

	// Stop terminates the process if any and clears all runtime state.
	// Safe to call repeatedly.
	Stop() error

	// Ready reports whether the instance has a running, ready process
	Ready() bool
}

// IsAvailable probes whether command resolves to an executable on PATH.
// It never returns an error: an unresolvable command is simply unavailable.
func IsAvailable(command string) bool {
	_, err := exec.LookPath(command)
	return err == nil
}
