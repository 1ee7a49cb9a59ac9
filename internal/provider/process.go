// SPDX-License-Identifier: AGPL-3.0-only
package provider

import (
	"bytes"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"syscall"

	"github.com/google/uuid"
)

// handle owns one spawned backend process and its three standard pipes.
// It knows nothing about tasks or prompts.
type handle struct {
	id  string
	cmd *exec.Cmd

	stdin io.WriteCloser

	// out carries stdout chunks and is closed when stdout reaches EOF
	out chan []byte

	errMu  sync.Mutex
	errBuf bytes.Buffer

	// done is closed once the process has exited and both pipes drained
	done chan struct{}
	exit int

	// quit unblocks the stdout reader when nobody is left to consume chunks
	quit     chan struct{}
	quitOnce sync.Once

	// stopRequested marks an exit as Stop-initiated so the exit monitor
	// stays silent about it
	stopMu        sync.Mutex
	stopRequested bool
}

// spawn starts command with args and wires up all three pipes.
func spawn(command string, args ...string) (*handle, error) {
	cmd := exec.Command(command, args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		_ = stdin.Close()
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		_ = stdin.Close()
		return nil, fmt.Errorf("create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		return nil, fmt.Errorf("spawn %s: %w", command, err)
	}

	h := &handle{
		id:    uuid.New().String(),
		cmd:   cmd,
		stdin: stdin,
		out:   make(chan []byte, 16),
		done:  make(chan struct{}),
		quit:  make(chan struct{}),
	}

	var readers sync.WaitGroup
	readers.Add(2)

	go func() {
		defer readers.Done()
		defer close(h.out)
		buf := make([]byte, 4096)
		for {
			n, err := stdout.Read(buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				select {
				case h.out <- chunk:
				case <-h.quit:
					return
				}
			}
			if err != nil {
				return
			}
		}
	}()

	go func() {
		defer readers.Done()
		buf := make([]byte, 4096)
		for {
			n, err := stderr.Read(buf)
			if n > 0 {
				h.errMu.Lock()
				h.errBuf.Write(buf[:n])
				h.errMu.Unlock()
			}
			if err != nil {
				return
			}
		}
	}()

	// Wait must not run until both pipe readers have finished, otherwise
	// it closes the pipes out from under them.
	go func() {
		readers.Wait()
		err := cmd.Wait()
		if cmd.ProcessState != nil {
			h.exit = cmd.ProcessState.ExitCode()
		} else if err != nil {
			h.exit = -1
		}
		close(h.done)
	}()

	return h, nil
}

// write sends text plus a line terminator to the process input pipe.
func (h *handle) write(text string) error {
	if _, err := io.WriteString(h.stdin, text+"\n"); err != nil {
		return fmt.Errorf("write to input pipe: %w", err)
	}
	return nil
}

// stderrText returns everything the process has written to stderr so far.
func (h *handle) stderrText() string {
	h.errMu.Lock()
	defer h.errMu.Unlock()
	return h.errBuf.String()
}

// terminate asks the process to exit. Errors are ignored: the process may
// already be gone, which is the state we want anyway.
func (h *handle) terminate() {
	h.quitOnce.Do(func() { close(h.quit) })
	if h.cmd.Process != nil {
		_ = h.cmd.Process.Signal(syscall.SIGTERM)
	}
}

// exitCode is only meaningful after done is closed.
func (h *handle) exitCode() int {
	return h.exit
}

// markStopRequested records that the coming exit is intentional.
func (h *handle) markStopRequested() {
	h.stopMu.Lock()
	h.stopRequested = true
	h.stopMu.Unlock()
}

// wasStopRequested reports whether the exit was Stop-initiated.
func (h *handle) wasStopRequested() bool {
	h.stopMu.Lock()
	defer h.stopMu.Unlock()
	return h.stopRequested
}
