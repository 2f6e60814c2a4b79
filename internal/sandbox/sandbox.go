package sandbox

import (
	"context"
	"errors"
	"syscall"
	"time"
)

// ErrLaunch marks failures to start a sandboxed process at all: a missing
// sandbox binary, toolchain, image or daemon. It says nothing about the
// submitted code.
var ErrLaunch = errors.New("sandbox launch failed")

// Profile selects the isolation policy applied to an invocation.
type Profile int

const (
	// ProfileCompile: no network, no root, private filesystem view.
	ProfileCompile Profile = iota
	// ProfileExecute: no network, no root, path blacklist, syscall allow-list.
	ProfileExecute
)

func (p Profile) String() string {
	if p == ProfileCompile {
		return "compile"
	}
	return "execute"
}

type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	// Signal is set when the process was killed by a signal, either observed
	// directly or reported by the sandbox wrapper as exit status 128+n.
	Signal   syscall.Signal
	TimedOut bool
	Duration time.Duration
}

// Terminated reports whether the sandbox or a limit cut the process short.
func (r *Result) Terminated() bool {
	return r.Signal != 0 || r.TimedOut
}

type Sandbox interface {
	Run(ctx context.Context, config RunConfig) (*Result, error)
	// Check verifies that a toolchain can be launched. Errors wrap ErrLaunch.
	Check(ctx context.Context, req Requirement) error
}

type RunConfig struct {
	Profile Profile
	// Image is only used by the docker backend.
	Image   string
	Command []string
	WorkDir string
	Stdin   string
	// CPUTimeLimit is in seconds; zero means no limit.
	CPUTimeLimit int
}

// Requirement names what a language needs from the host.
type Requirement struct {
	Binary string
	Image  string
}

// limitSignals are the signals a sandbox uses to enforce limits: the CPU
// rlimit (SIGXCPU, then SIGKILL) and the seccomp filter (SIGSYS).
var limitSignals = map[syscall.Signal]string{
	syscall.SIGKILL: "killed",
	syscall.SIGXCPU: "CPU time limit exceeded",
	syscall.SIGSYS:  "disallowed system call",
}

// signalFromStatus recovers a limit signal from a wrapper's exit status. A
// program that itself exits with 137, 152 or 159 looks the same and is
// reported as terminated.
func signalFromStatus(code int) syscall.Signal {
	if code <= 128 {
		return 0
	}
	sig := syscall.Signal(code - 128)
	if _, ok := limitSignals[sig]; ok {
		return sig
	}
	return 0
}

// Describe returns a short human readable reason for a terminated process.
func Describe(r *Result) string {
	if r.TimedOut {
		return "killed: wall-clock limit exceeded"
	}
	if reason, ok := limitSignals[r.Signal]; ok {
		if r.Signal == syscall.SIGKILL {
			return "killed: resource limit exceeded"
		}
		return "killed: " + reason
	}
	if r.Signal != 0 {
		return "killed: " + r.Signal.String()
	}
	return ""
}
