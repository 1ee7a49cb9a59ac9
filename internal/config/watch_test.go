// SPDX-License-Identifier: AGPL-3.0-only
package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatchEmitsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pipetask.json")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := Watch(ctx, path)
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}

	if err := os.WriteFile(path, []byte(`{"provider":{"default":"ollama"}}`), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	// Expect an event (with debounce); allow up to 2s
	select {
	case <-ch:
		// ok
	case <-time.After(2 * time.Second):
		t.Fatal("expected watch event after file write")
	}
}

func TestWatchClosesOnCancel(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pipetask.json")

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := Watch(ctx, path)
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected channel close, got event")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed after cancel")
	}
}
