// internal/env/terminal/shell.go
package terminal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"

	"github.com/xkilldash9x/scalpel-agent/internal/config"
)

// Process is a running shell. Writes go to its stdin; Output yields stdout
// and stderr interleaved until the process is closed.
type Process interface {
	io.Writer
	Output() io.Reader
	Close() error
}

// Starter launches a shell in dir.
type Starter func(ctx context.Context, dir string) (Process, error)

// shellArgs keeps the user's rc files from overriding the prompt.
func shellArgs(shell string) []string {
	if filepath.Base(shell) == "bash" {
		return []string{"--noprofile", "--norc", "-i"}
	}
	return []string{"-i"}
}

// ShellStarter starts cfg.Shell as an interactive shell with cfg.Prompt as
// PS1 and TERM=xterm-256color.
func ShellStarter(cfg config.TerminalConfig) Starter {
	return func(ctx context.Context, dir string) (Process, error) {
		shell := cfg.Shell
		if shell == "" {
			shell = "bash"
		}
		path, err := exec.LookPath(shell)
		if err != nil {
			return nil, fmt.Errorf("failed to find shell %q: %w", shell, err)
		}

		// The shell outlives ctx; only Close ends it.
		cmd := exec.Command(path, shellArgs(shell)...)
		cmd.Dir = dir
		cmd.Env = append(os.Environ(), "PS1="+cfg.Prompt, "TERM=xterm-256color")

		stdin, err := cmd.StdinPipe()
		if err != nil {
			return nil, fmt.Errorf("failed to open shell stdin: %w", err)
		}
		outR, outW, err := os.Pipe()
		if err != nil {
			return nil, fmt.Errorf("failed to open shell output: %w", err)
		}
		cmd.Stdout = outW
		cmd.Stderr = outW

		if err := cmd.Start(); err != nil {
			outR.Close()
			outW.Close()
			return nil, fmt.Errorf("failed to start shell: %w", err)
		}
		// The child holds its own copy of the write end.
		outW.Close()
		return &shellProcess{cmd: cmd, stdin: stdin, out: outR}, nil
	}
}

type shellProcess struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
	out   *os.File

	closeOnce sync.Once
	closeErr  error
}

func (p *shellProcess) Write(b []byte) (int, error) { return p.stdin.Write(b) }

func (p *shellProcess) Output() io.Reader { return p.out }

// Close kills the shell and releases the output pipe. Background jobs may
// still hold the pipe open, so the read end is closed explicitly.
func (p *shellProcess) Close() error {
	p.closeOnce.Do(func() {
		p.stdin.Close()
		if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			p.closeErr = fmt.Errorf("failed to kill shell: %w", err)
		}
		_ = p.cmd.Wait()
		p.out.Close()
	})
	return p.closeErr
}
