package install

import (
	"fmt"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
)

// Codes reported for failed install steps
const (
	CodePkgMgrNotDetected = 1001
	CodeUnsupportedDistro = 1002
	CodeInstallFailed     = 1003
	CodePacurInstall      = 2001
	CodePacurDirNotFound  = 2002
	CodePacurVersion      = 2003
	CodeUpdateScript      = 2004
	CodeBuildScript       = 2005
	CodeWaywallClone      = 2006
	CodeWaywallBuild      = 2007
	CodeWaywallPkgInstall = 2008
	CodeGeneralSetup      = 2999
	CodePrismConfig       = 3001
	CodePrismInstall      = 3002
	CodeDiscordInstall    = 4001
	CodeOBSInstall        = 5001
	CodeModCheckInstall   = 6001
	CodeNinjabrainInstall = 6002
	CodePacemanInstall    = 6003
	CodeMapCheckInstall   = 6004
)

// stepError carries the code of the sub-step which failed
type stepError struct {
	code int
	err  error
}

func (e *stepError) Error() string {
	return e.err.Error()
}

func (e *stepError) Unwrap() error {
	return e.err
}

func withCode(code int, err error) error {
	if err == nil {
		return nil
	}
	return &stepError{code: code, err: err}
}

func codeOf(err error, fallback int) int {
	var se *stepError
	if eris.As(err, &se) {
		return se.code
	}
	return fallback
}

// Failure is a single failed step
type Failure struct {
	Code int
	Name string
	Err  error
}

func (f Failure) String() string {
	return fmt.Sprintf("[Error %d] %s: %s", f.Code, f.Name, f.Err.Error())
}

type Outcome string

const (
	Success Outcome = "success"
	Partial Outcome = "partial"
	Failed  Outcome = "failed"
)

// Report collects the results of an install run
type Report struct {
	Installed []string
	Errors    []Failure

	lock sync.Mutex
}

func (r *Report) succeed(names ...string) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.Installed = append(r.Installed, names...)
}

func (r *Report) fail(code int, name string, err error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.Errors = append(r.Errors, Failure{Code: codeOf(err, code), Name: name, Err: err})
}

// failedFor reports whether a step of name already failed
func (r *Report) failedFor(name string) bool {
	r.lock.Lock()
	defer r.lock.Unlock()
	for _, failure := range r.Errors {
		if failure.Name == name {
			return true
		}
	}
	return false
}

func (r *Report) Outcome() Outcome {
	switch {
	case len(r.Errors) == 0:
		return Success
	case len(r.Installed) == 0:
		return Failed
	default:
		return Partial
	}
}

// Messages renders every failure
func (r *Report) Messages() []string {
	lines := make([]string, len(r.Errors))
	for idx, failure := range r.Errors {
		lines[idx] = failure.String()
	}
	return lines
}

func (r *Report) String() string {
	var b strings.Builder
	switch r.Outcome() {
	case Success:
		b.WriteString("All packages installed successfully")
	case Partial:
		b.WriteString("Some packages installed successfully")
	case Failed:
		b.WriteString("Installation failed")
	}

	if len(r.Installed) > 0 {
		b.WriteString("\nInstalled: ")
		b.WriteString(strings.Join(r.Installed, ", "))
	}
	for _, msg := range r.Messages() {
		b.WriteString("\n")
		b.WriteString(msg)
	}
	return b.String()
}
