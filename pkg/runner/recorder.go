package runner

import (
	"context"
	"strings"
	"sync"
)

// Recorder is a Runner which doesn't execute anything. It remembers every call and answers through Handler.
type Recorder struct {
	// Handler decides the result of a call. Elevated calls are passed as Cmd{Name: "root", Stdin: script}.
	Handler func(Cmd) (Result, error)

	lock  sync.Mutex
	calls []Cmd
}

var _ Runner = (*Recorder)(nil)

func (r *Recorder) record(cmd Cmd) (Result, error) {
	r.lock.Lock()
	r.calls = append(r.calls, cmd)
	handler := r.Handler
	r.lock.Unlock()

	if handler == nil {
		return Result{}, nil
	}
	return handler(cmd)
}

func (r *Recorder) Run(ctx context.Context, cmd Cmd) (Result, error) {
	return r.record(cmd)
}

func (r *Recorder) RunElevated(ctx context.Context, script string) (Result, error) {
	return r.record(Cmd{Name: "root", Stdin: script})
}

// Calls returns a copy of all recorded calls
func (r *Recorder) Calls() []Cmd {
	r.lock.Lock()
	defer r.lock.Unlock()

	return append([]Cmd(nil), r.calls...)
}

// Lines renders every recorded call as a single line (elevated scripts are prefixed with "root: ")
func (r *Recorder) Lines() []string {
	calls := r.Calls()
	lines := make([]string, len(calls))
	for idx, call := range calls {
		if call.Name == "root" {
			lines[idx] = "root: " + call.Stdin
		} else {
			lines[idx] = call.String()
		}
	}
	return lines
}

// Joined returns all Lines() separated by newlines which is handy for Contains assertions
func (r *Recorder) Joined() string {
	return strings.Join(r.Lines(), "\n")
}
