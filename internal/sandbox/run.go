package sandbox

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"sync"
	"time"
)

const (
	defaultMaxOutputBytes = 1 << 20

	// waitDelay bounds how long Wait keeps draining output after the child
	// exits, in case a stray descendant still holds the pipe.
	waitDelay = 2 * time.Second
)

// cappedBuffer keeps the first max bytes written and discards the rest while
// reporting full writes, so a chatty child never sees a short write.
type cappedBuffer struct {
	buf       bytes.Buffer
	max       int
	truncated bool
}

func (w *cappedBuffer) Write(p []byte) (int, error) {
	n := len(p)
	remaining := w.max - w.buf.Len()
	if remaining <= 0 {
		w.truncated = n > 0 || w.truncated
		return n, nil
	}
	if len(p) > remaining {
		p = p[:remaining]
		w.truncated = true
	}
	w.buf.Write(p)
	return n, nil
}

func (w *cappedBuffer) String() string {
	if w.truncated {
		return w.buf.String() + "\n[output truncated]"
	}
	return w.buf.String()
}

type procSpec struct {
	dir       string
	argv      []string
	env       []string
	timeout   time.Duration
	memLimit  int64
	maxOutput int
}

type procResult struct {
	output   string
	exitCode int
	timedOut bool
	elapsed  time.Duration
}

// runProc runs argv to completion or until the timeout fires, in which case
// the whole process group is killed and reaped before returning. The returned
// error is reserved for failures to start the process or cancellation of ctx.
func runProc(ctx context.Context, spec procSpec) (procResult, error) {
	maxOut := spec.maxOutput
	if maxOut <= 0 {
		maxOut = defaultMaxOutputBytes
	}
	out := &cappedBuffer{max: maxOut}

	cmd := exec.Command(spec.argv[0], spec.argv[1:]...)
	cmd.Dir = spec.dir
	cmd.Env = spec.env
	if cmd.Env == nil {
		cmd.Env = os.Environ()
	}
	cmd.Stdout = out
	cmd.Stderr = out
	cmd.WaitDelay = waitDelay
	isolate(cmd)

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return procResult{}, err
	}
	if err := limitMemory(cmd, spec.memLimit); err != nil {
		killTree(cmd)
		_ = cmd.Wait()
		return procResult{}, err
	}

	g := &killGate{cmd: cmd}
	done := make(chan struct{})
	go func() {
		var deadline <-chan time.Time
		if spec.timeout > 0 {
			t := time.NewTimer(spec.timeout)
			defer t.Stop()
			deadline = t.C
		}
		select {
		case <-ctx.Done():
			g.kill(false)
		case <-deadline:
			g.kill(true)
		case <-done:
		}
	}()

	// The leader stays a zombie until Wait, so its pid and pgid cannot be
	// reused while stragglers in the group are cleaned up.
	if waitExited(cmd) {
		g.markExited(true)
	}
	waitErr := cmd.Wait()
	g.markExited(false)
	close(done)
	elapsed := time.Since(start)

	if g.expired() {
		return procResult{output: out.String(), exitCode: -1, timedOut: true, elapsed: elapsed}, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return procResult{}, ctxErr
	}
	return procResult{
		output:   out.String(),
		exitCode: exitCodeFromErr(waitErr, cmd.ProcessState),
		elapsed:  elapsed,
	}, nil
}

// killGate serializes the timeout kill with the child's exit so a run that
// finished on its own is never reported as a timeout and a reaped pgid is
// never signalled.
type killGate struct {
	cmd      *exec.Cmd
	mu       sync.Mutex
	exited   bool
	timedOut bool
}

func (g *killGate) kill(timeout bool) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.exited {
		return false
	}
	g.timedOut = g.timedOut || timeout
	killTree(g.cmd)
	return true
}

// markExited records that the leader exited. With sweep set the rest of its
// process group is killed first.
func (g *killGate) markExited(sweep bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.exited {
		return
	}
	if sweep {
		killTree(g.cmd)
	}
	g.exited = true
}

func (g *killGate) expired() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.timedOut
}

func exitCodeFromErr(err error, state *os.ProcessState) int {
	if state != nil {
		return state.ExitCode()
	}
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
