// Package runner executes external commands and privileged shell snippets.
package runner

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/Flammable-Bunny/Lingle/pkg/api"
	"github.com/Flammable-Bunny/Lingle/pkg/exitcode"
)

// Cmd describes a single process invocation
type Cmd struct {
	Name  string
	Args  []string
	Dir   string
	Env   []string
	Stdin string
}

func (c Cmd) String() string {
	parts := append([]string{c.Name}, c.Args...)
	for idx, part := range parts {
		parts[idx] = Quote(part)
	}
	return strings.Join(parts, " ")
}

// Result is the outcome of a command which could be started. A non-zero exit code is not an error.
type Result struct {
	ExitCode int
	Output   string
}

func (r Result) OK() bool {
	return r.ExitCode == 0
}

// Runner runs commands as the current user or as root
type Runner interface {
	Run(ctx context.Context, cmd Cmd) (Result, error)
	// RunElevated runs a bash snippet as root
	RunElevated(ctx context.Context, script string) (Result, error)
}

// System is the Runner used outside of tests
type System struct {
	shell *Shell
	once  sync.Once
}

var _ Runner = (*System)(nil)

func NewSystem() *System {
	return &System{}
}

func (s *System) Run(ctx context.Context, cmd Cmd) (Result, error) {
	return execCmd(ctx, cmd)
}

// RunElevated sends script to a root shell which is started on first use and reused afterwards, so the user only
// has to authenticate once.
func (s *System) RunElevated(ctx context.Context, script string) (Result, error) {
	s.once.Do(func() {
		s.shell = NewShell("pkexec", "bash", "-s")
	})

	return s.shell.Exec(ctx, script)
}

// Close terminates the root shell if it was started
func (s *System) Close() error {
	if s.shell == nil {
		return nil
	}
	return s.shell.Close()
}

func execCmd(ctx context.Context, c Cmd) (Result, error) {
	logger := api.Log(ctx)
	logger.Info().Str("cmd", c.String()).Msg("Running")

	proc := exec.CommandContext(ctx, c.Name, c.Args...)
	proc.Dir = c.Dir
	if len(c.Env) > 0 {
		proc.Env = append(os.Environ(), c.Env...)
	}
	if c.Stdin != "" {
		proc.Stdin = strings.NewReader(c.Stdin)
	}

	pr, pw := io.Pipe()
	proc.Stdout = pw
	proc.Stderr = pw

	var output bytes.Buffer
	done := make(chan struct{})
	go func() {
		defer close(done)
		scanner := bufio.NewScanner(pr)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			logger.Debug().Str("output", line).Msg(c.Name)
			output.WriteString(line)
			output.WriteByte('\n')
		}
		// drain whatever is left so the process never blocks on a full pipe
		_, _ = io.Copy(io.Discard, pr)
	}()

	err := proc.Run()
	pw.Close()
	<-done

	result := Result{Output: output.String()}
	if err != nil {
		var exitErr *exec.ExitError
		if eris.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			logger.Debug().Int("exit", result.ExitCode).Msgf("%s exited", c.Name)
			return result, nil
		}

		if eris.Is(err, exec.ErrNotFound) {
			return result, exitcode.Wrap(exitcode.Dependency, eris.Wrapf(err, "%s is not installed", c.Name))
		}
		return result, eris.Wrapf(err, "Failed to run %s", c.Name)
	}

	return result, nil
}

// Check converts a failed result into an error carrying code
func Check(res Result, err error, code exitcode.Code, what string) error {
	if err != nil {
		return exitcode.Wrap(code, eris.Wrapf(err, "%s failed", what))
	}

	if !res.OK() {
		out := strings.TrimSpace(res.Output)
		if out == "" {
			return exitcode.Errorf(code, "%s failed (exit code %d)", what, res.ExitCode)
		}
		return exitcode.Errorf(code, "%s failed (exit code %d): %s", what, res.ExitCode, out)
	}

	return nil
}
