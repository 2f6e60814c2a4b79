package executor

import (
	"errors"
	"fmt"

	"github.com/itstheanurag/coderunner/internal/sandbox"
)

const (
	MinTimeLimit = 1
	MaxTimeLimit = 10
)

var ErrInvalidTimeLimit = fmt.Errorf("time limit must be between %d..%d (seconds)", MinTimeLimit, MaxTimeLimit)

// ValidateTimeLimit checks a CPU time limit given in seconds.
func ValidateTimeLimit(seconds int) error {
	if seconds < MinTimeLimit || seconds > MaxTimeLimit {
		return ErrInvalidTimeLimit
	}
	return nil
}

// IsLaunchFailure reports whether err means the request could not be run
// at all, as opposed to the submission failing.
func IsLaunchFailure(err error) bool {
	return errors.Is(err, sandbox.ErrLaunch)
}

type Status string

const (
	StatusCompileTimeError Status = "CompileTimeError"
	StatusRuntimeError     Status = "RuntimeError"
	StatusOk               Status = "Ok"
)

// Outcome is the classified result of one submission. Message carries the
// compiler diagnostics, the program's stderr or its stdout, depending on
// Status.
type Outcome struct {
	Status  Status `json:"status"`
	Message string `json:"message"`
}

// classifyCompile returns a CompileTimeError outcome when the compiler wrote
// anything to stderr, warnings included, or was killed by a limit. A nil
// outcome means the binary may be run.
func classifyCompile(res *sandbox.Result) *Outcome {
	if res.Stderr != "" {
		return &Outcome{Status: StatusCompileTimeError, Message: res.Stderr}
	}
	if res.Terminated() {
		return &Outcome{Status: StatusCompileTimeError, Message: sandbox.Describe(res)}
	}
	return nil
}

// classifyRun maps a finished run to RuntimeError or Ok. Any stderr output
// is a runtime error regardless of exit code; a clean stderr with a non-zero
// exit code is still Ok.
func classifyRun(res *sandbox.Result) *Outcome {
	if res.Stderr != "" {
		return &Outcome{Status: StatusRuntimeError, Message: res.Stderr}
	}
	if res.Terminated() {
		return &Outcome{Status: StatusRuntimeError, Message: sandbox.Describe(res)}
	}
	return &Outcome{Status: StatusOk, Message: res.Stdout}
}
