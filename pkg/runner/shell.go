package runner

import (
	"bufio"
	"context"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/aidarkhanov/nanoid"
	"github.com/rotisserie/eris"

	"github.com/Flammable-Bunny/Lingle/pkg/api"
	"github.com/Flammable-Bunny/Lingle/pkg/exitcode"
)

const markerAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Shell is a long-lived interpreter process which receives snippets on stdin. lingle starts it through pkexec
// to keep a single root session open.
type Shell struct {
	argv []string

	lock   sync.Mutex
	proc   *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader
}

// NewShell prepares a shell started with argv. The process is started on the first Exec call.
func NewShell(argv ...string) *Shell {
	return &Shell{argv: argv}
}

func (s *Shell) start() error {
	proc := exec.Command(s.argv[0], s.argv[1:]...)
	stdin, err := proc.StdinPipe()
	if err != nil {
		return eris.Wrap(err, "Failed to open stdin pipe")
	}

	stdout, err := proc.StdoutPipe()
	if err != nil {
		return eris.Wrap(err, "Failed to open stdout pipe")
	}
	proc.Stderr = proc.Stdout

	err = proc.Start()
	if err != nil {
		if eris.Is(err, exec.ErrNotFound) {
			return exitcode.Wrap(exitcode.Dependency, eris.Wrapf(err, "%s is not installed", s.argv[0]))
		}
		return exitcode.Wrap(exitcode.Permission, eris.Wrapf(err, "Failed to start %s", strings.Join(s.argv, " ")))
	}

	s.proc = proc
	s.stdin = stdin
	s.stdout = bufio.NewReader(stdout)
	return nil
}

func newMarker(prefix string) (string, error) {
	id, err := nanoid.Generate(markerAlphabet, 16)
	if err != nil {
		return "", eris.Wrap(err, "Failed to generate marker")
	}
	return "__LINGLE_" + prefix + "_" + id, nil
}

// Exec runs script in the shell and returns its combined output and exit code. Calls are serialized.
func (s *Shell) Exec(ctx context.Context, script string) (Result, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.proc == nil {
		err := s.start()
		if err != nil {
			return Result{ExitCode: -1}, err
		}
	}

	exitMarker, err := newMarker("EXIT")
	if err != nil {
		return Result{ExitCode: -1}, err
	}
	doneMarker, err := newMarker("DONE")
	if err != nil {
		return Result{ExitCode: -1}, err
	}

	logger := api.Log(ctx)
	logger.Info().Str("cmd", script).Msg("Running as root")

	wrapped := "{\n" + script + "\n} 2>&1\necho " + exitMarker + ":$?\necho " + doneMarker + "\n"
	_, err = io.WriteString(s.stdin, wrapped)
	if err != nil {
		s.reset()
		return Result{ExitCode: -1}, exitcode.Wrap(exitcode.Permission, eris.Wrap(err, "The root shell is gone"))
	}

	type readResult struct {
		res Result
		err error
	}
	done := make(chan readResult, 1)
	reader := s.stdout
	go func() {
		res := Result{ExitCode: -1}
		var output strings.Builder
		for {
			line, err := reader.ReadString('\n')
			line = strings.TrimRight(line, "\r\n")
			if err != nil {
				res.Output = output.String()
				done <- readResult{res, exitcode.Wrap(exitcode.Permission, eris.Wrap(err, "The root shell exited unexpectedly (authentication dismissed?)"))}
				return
			}

			// output without a trailing newline ends up in front of the marker
			if pos := strings.Index(line, exitMarker+":"); pos > -1 {
				if pos > 0 {
					output.WriteString(line[:pos])
					output.WriteByte('\n')
				}
				code, err := strconv.Atoi(line[pos+len(exitMarker)+1:])
				if err == nil {
					res.ExitCode = code
				}
				continue
			}

			switch {
			case line == doneMarker:
				res.Output = output.String()
				done <- readResult{res, nil}
				return
			default:
				logger.Debug().Str("output", line).Msg("root")
				output.WriteString(line)
				output.WriteByte('\n')
			}
		}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			s.reset()
		}
		return r.res, r.err
	case <-ctx.Done():
		// the reader goroutine can only be unblocked by killing the shell
		s.reset()
		<-done
		return Result{ExitCode: -1}, ctx.Err()
	}
}

func (s *Shell) reset() {
	if s.proc == nil {
		return
	}

	s.stdin.Close()
	if s.proc.Process != nil {
		_ = s.proc.Process.Kill()
	}
	_ = s.proc.Wait()
	s.proc = nil
	s.stdin = nil
	s.stdout = nil
}

// Close asks the shell to exit and waits for it
func (s *Shell) Close() error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.proc == nil {
		return nil
	}

	_, _ = io.WriteString(s.stdin, "exit\n")
	s.stdin.Close()
	err := s.proc.Wait()
	s.proc = nil
	s.stdin = nil
	s.stdout = nil
	if err != nil {
		var exitErr *exec.ExitError
		if eris.As(err, &exitErr) {
			return nil
		}
		return eris.Wrap(err, "Failed to stop the root shell")
	}
	return nil
}
