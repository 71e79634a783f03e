package engine

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/sentra-ai/sentra-gateway/internal/errors"
)

// killGrace is how long Close waits for a worker to exit after receiving
// the exit token before killing it.
const killGrace = 2 * time.Second

// Pool runs a fixed number of long-lived engine processes speaking the
// line protocol, checked out per request and returned afterward. This
// avoids the per-query index-load cost of spawning a fresh process.
//
// Workers are started lazily and restarted after a crash or timeout; a
// worker whose conversation state is unknown is never reused.
//
// One behavioral difference from the process-per-query Dispatcher: a
// worker that never prints the prompt sentinel cannot be told apart from
// a slow one, so such a query ends in a timeout instead of the fallback
// no-response answer.
type Pool struct {
	cfg    Config
	logger *slog.Logger

	// slots holds workers ready for checkout. A nil entry is a free slot:
	// the next checkout starts a fresh process for it.
	slots chan *worker

	mu     sync.Mutex
	closed bool

	// startWorker is swappable for tests.
	startWorker func() (*worker, error)
}

// NewPool creates a pool of size long-lived engine workers.
func NewPool(cfg Config, size int, logger *slog.Logger) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pool{
		cfg:    cfg.withDefaults(),
		logger: logger,
		slots:  make(chan *worker, size),
	}
	p.startWorker = p.spawn
	for i := 0; i < size; i++ {
		p.slots <- nil
	}
	return p
}

// Dispatch checks out a worker, asks the question, and returns the worker
// to the pool. Semantics match Dispatcher.Dispatch.
func (p *Pool) Dispatch(ctx context.Context, question string) (Result, error) {
	if strings.TrimSpace(question) == "" {
		return Result{}, errors.Validation("question cannot be empty")
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	var w *worker
	select {
	case w = <-p.slots:
	case <-ctx.Done():
		return Result{}, errors.Timeout("query timeout waiting for engine worker", ctx.Err())
	}

	if w == nil {
		var err error
		w, err = p.startWorker()
		if err != nil {
			p.slots <- nil
			return Result{}, err
		}
	}

	answer, err := w.ask(ctx, p.cfg.Sentinel, question)
	if err != nil {
		// Conversation state is unknown: kill and free the slot.
		w.kill()
		p.slots <- nil
		if ctx.Err() == context.DeadlineExceeded {
			return Result{}, errors.Timeout("query timeout", ctx.Err()).
				WithDetail("timeout", p.cfg.Timeout.String())
		}
		return Result{}, errors.EngineFailure("engine worker failed: "+err.Error(), err)
	}

	p.slots <- w

	if answer == "" {
		return Result{Answer: NoResponseAnswer, NoResponse: true}, nil
	}
	return Result{Answer: answer}, nil
}

// Close shuts down all workers. The pool must not be used afterwards.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	for i := 0; i < cap(p.slots); i++ {
		w := <-p.slots
		if w != nil {
			w.stop(p.cfg.ExitToken)
		}
	}
	close(p.slots)
	return nil
}

// spawn starts one engine process and its stdout reader.
func (p *Pool) spawn() (*worker, error) {
	d := &Dispatcher{cfg: p.cfg, lookPath: exec.LookPath}
	binary, err := d.resolveBinary()
	if err != nil {
		return nil, err
	}

	cmd := exec.Command(binary)
	cmd.Dir = p.cfg.WorkDir

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, errors.Internal("engine stdin pipe", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.Internal("engine stdout pipe", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, errors.Internal("start engine worker: "+err.Error(), err)
	}

	w := &worker{
		cmd:      cmd,
		stdin:    stdin,
		lines:    make(chan string, 64),
		waitDone: make(chan struct{}),
	}
	go w.readLines(stdout)

	p.logger.Info("engine worker started", "pid", cmd.Process.Pid)
	return w, nil
}

// worker is one long-lived engine process.
type worker struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
	lines chan string

	waitOnce sync.Once
	waitDone chan struct{}
}

// readLines feeds stdout lines to the channel until the process closes its
// output. The channel close signals a dead worker to ask().
func (w *worker) readLines(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		w.lines <- scanner.Text()
	}
	close(w.lines)
}

// ask writes one question and reads the answer: lines are skipped until the
// sentinel, then collected until the next blank line.
func (w *worker) ask(ctx context.Context, sentinel, question string) (string, error) {
	if _, err := io.WriteString(w.stdin, question+"\n"); err != nil {
		return "", fmt.Errorf("write question: %w", err)
	}

	var parts []string
	sawSentinel := false
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case line, ok := <-w.lines:
			if !ok {
				return "", fmt.Errorf("engine worker exited mid-answer")
			}
			if !sawSentinel {
				idx := strings.Index(line, sentinel)
				if idx < 0 {
					continue
				}
				sawSentinel = true
				if rest := strings.TrimSpace(line[idx+len(sentinel):]); rest != "" {
					parts = append(parts, rest)
				}
				continue
			}
			if strings.TrimSpace(line) == "" {
				return strings.TrimSpace(strings.Join(parts, "\n")), nil
			}
			parts = append(parts, line)
		}
	}
}

// stop asks the worker to exit and kills it if it does not comply in time.
func (w *worker) stop(exitToken string) {
	_, _ = io.WriteString(w.stdin, exitToken+"\n")
	_ = w.stdin.Close()

	go w.reap()
	select {
	case <-w.waitDone:
	case <-time.After(killGrace):
		w.kill()
		<-w.waitDone
	}
}

// kill terminates the worker process immediately and reaps it in the
// background so it never lingers as a zombie.
func (w *worker) kill() {
	if w.cmd.Process != nil {
		_ = w.cmd.Process.Kill()
	}
	go w.reap()
}

// reap waits for the process exactly once; waitDone closes when the exit
// status has been collected.
func (w *worker) reap() {
	w.waitOnce.Do(func() {
		_ = w.cmd.Wait()
		close(w.waitDone)
	})
}
