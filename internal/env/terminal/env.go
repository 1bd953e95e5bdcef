// Package terminal exposes an interactive shell as an agent environment. The
// shell's output is pumped into a bounded line buffer in the background and
// every observation is whatever has arrived after a fixed wait.
package terminal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/scalpel-agent/api/schemas"
	"github.com/xkilldash9x/scalpel-agent/internal/agent"
	"github.com/xkilldash9x/scalpel-agent/internal/config"
	"github.com/xkilldash9x/scalpel-agent/internal/memory"
)

// ErrNotStarted is returned by Step before the first Reset.
var ErrNotStarted = errors.New("terminal not started")

// Env is a terminal environment. Step and Reset must not be called
// concurrently; the output pump runs alongside them.
type Env struct {
	start    Starter
	registry *agent.Registry[*Env]
	logger   *zap.Logger
	cfg      config.TerminalConfig

	proc Process
	pump *errgroup.Group
	dir  string

	mu      sync.Mutex
	screen  *memory.TextEditor
	partial string

	done   bool
	answer string
}

var _ agent.Environment = (*Env)(nil)

// New builds an environment. A nil start selects ShellStarter(cfg) and a nil
// registry selects DefaultRegistry.
func New(logger *zap.Logger, cfg config.TerminalConfig, start Starter, registry *agent.Registry[*Env]) (*Env, error) {
	if start == nil {
		start = ShellStarter(cfg)
	}
	if registry == nil {
		var err error
		if registry, err = DefaultRegistry(); err != nil {
			return nil, err
		}
	}
	if cfg.MaxLines <= 0 {
		cfg.MaxLines = 200
	}
	return &Env{
		start:    start,
		registry: registry,
		logger:   logger.Named("terminal"),
		cfg:      cfg,
		screen:   memory.NewTextEditor(),
	}, nil
}

func resolveDir(dir string) (string, error) {
	if dir == "" {
		dir = "."
	}
	expanded, err := homedir.Expand(dir)
	if err != nil {
		return "", fmt.Errorf("failed to expand %q: %w", dir, err)
	}
	abs, err := filepath.Abs(expanded)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %q: %w", dir, err)
	}
	fi, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("invalid working directory: %w", err)
	}
	if !fi.IsDir() {
		return "", fmt.Errorf("invalid working directory: %s is not a directory", abs)
	}
	return abs, nil
}

// Reset (re)starts the shell in opts.Start, or the configured work dir, and
// observes its first output.
func (e *Env) Reset(ctx context.Context, opts agent.ResetOptions) (agent.Observation, agent.Info, error) {
	if err := e.stop(); err != nil {
		e.logger.Warn("Previous shell did not stop cleanly.", zap.Error(err))
	}
	e.done, e.answer = false, ""

	start := opts.Start
	if start == "" {
		start = e.cfg.WorkDir
	}
	dir, err := resolveDir(start)
	if err != nil {
		return agent.Observation{}, agent.Info{}, err
	}

	e.mu.Lock()
	e.screen.Reset()
	e.partial = ""
	e.mu.Unlock()

	proc, err := e.start(ctx, dir)
	if err != nil {
		return agent.Observation{}, agent.Info{}, err
	}
	e.proc, e.dir = proc, dir
	e.pump = new(errgroup.Group)
	e.pump.Go(func() error { return e.drain(proc.Output()) })
	e.logger.Info("Shell started.", zap.String("dir", dir))

	if err := e.wait(ctx); err != nil {
		return agent.Observation{}, agent.Info{}, err
	}
	return e.observe(nil), e.info(), nil
}

// Step dispatches cmd, waits for output and observes the screen.
func (e *Env) Step(ctx context.Context, cmd agent.Command) (agent.Observation, agent.Info, error) {
	if e.proc == nil {
		return agent.Observation{}, agent.Info{}, ErrNotStarted
	}

	var res agent.ActionResult
	if e.done {
		res = agent.Failed(agent.ErrCodeExecutionFailure, "The episode is complete. Reset to start a new one.")
	} else {
		var err error
		res, err = e.registry.Dispatch(ctx, e, cmd)
		if err != nil {
			return agent.Observation{}, agent.Info{}, fmt.Errorf("terminal action %q failed: %w", cmd.Name, err)
		}
		if err := e.wait(ctx); err != nil {
			return agent.Observation{}, agent.Info{}, err
		}
	}
	return e.observe(&res), e.info(), nil
}

// Close stops the shell and its output pump.
func (e *Env) Close() error {
	return e.stop()
}

func (e *Env) stop() error {
	if e.proc == nil {
		return nil
	}
	err := e.proc.Close()
	if perr := e.pump.Wait(); perr != nil {
		e.logger.Debug("Output pump ended with error.", zap.Error(perr))
	}
	e.proc, e.pump = nil, nil
	return err
}

// wait gives the shell cfg.PollWait to produce output.
func (e *Env) wait(ctx context.Context) error {
	if e.cfg.PollWait <= 0 {
		return nil
	}
	t := time.NewTimer(e.cfg.PollWait)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// drain copies shell output into the screen until the process is closed.
func (e *Env) drain(r io.Reader) error {
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			e.append(string(buf[:n]))
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
				return nil
			}
			return fmt.Errorf("failed to read shell output: %w", err)
		}
	}
}

// append adds a chunk of output. Text after the last newline is held back as
// the partial line until more output completes it.
func (e *Env) append(chunk string) {
	chunk = strings.ReplaceAll(chunk, "\r", "")

	e.mu.Lock()
	defer e.mu.Unlock()
	text := e.partial + chunk
	i := strings.LastIndexByte(text, '\n')
	if i < 0 {
		e.partial = text
		return
	}
	e.partial = text[i+1:]
	if err := e.screen.Insert(text[:i], memory.End); err != nil {
		e.logger.Error("Failed to buffer shell output.", zap.Error(err))
		return
	}
	e.screen.KeepLast(e.cfg.MaxLines)
}

// Screen renders the buffered output, the pending partial line included.
func (e *Env) Screen() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	lines := e.screen.Lines()
	if e.partial != "" {
		lines = append(lines, e.partial)
	}
	return strings.Join(lines, "\n")
}

func (e *Env) observe(last *agent.ActionResult) agent.Observation {
	return agent.Observation{
		Location:   e.dir,
		Text:       e.Screen(),
		LastResult: last,
	}
}

func (e *Env) info() agent.Info {
	return agent.Info{
		Namespace: schemas.NamespaceTerminal,
		Actions:   e.registry.Catalog(),
		Done:      e.done,
		Answer:    e.answer,
	}
}

// send writes raw input to the shell.
func (e *Env) send(s string) error {
	if _, err := io.WriteString(e.proc, s); err != nil {
		return fmt.Errorf("failed to write to shell: %w", err)
	}
	return nil
}
