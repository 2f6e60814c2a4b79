package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

const waitDelay = 2 * time.Second

// FirejailSandbox drives the firejail binary found on the host PATH.
type FirejailSandbox struct {
	binary string
	policy Policy
	logger *zerolog.Logger
}

func NewFirejailSandbox(binary string, policy Policy, logger *zerolog.Logger) *FirejailSandbox {
	if binary == "" {
		binary = "firejail"
	}
	return &FirejailSandbox{binary: binary, policy: policy, logger: logger}
}

func (s *FirejailSandbox) Check(_ context.Context, req Requirement) error {
	if _, err := exec.LookPath(s.binary); err != nil {
		return fmt.Errorf("%w: sandbox binary %q: %v", ErrLaunch, s.binary, err)
	}
	if req.Binary == "" || filepath.IsAbs(req.Binary) {
		return nil
	}
	if _, err := exec.LookPath(req.Binary); err != nil {
		return fmt.Errorf("%w: toolchain %q: %v", ErrLaunch, req.Binary, err)
	}
	return nil
}

func (s *FirejailSandbox) Run(ctx context.Context, cfg RunConfig) (*Result, error) {
	if len(cfg.Command) == 0 {
		return nil, fmt.Errorf("%w: empty command", ErrLaunch)
	}

	cmd := exec.CommandContext(ctx, s.binary, s.policy.firejailArgs(cfg)...)
	cmd.Dir = cfg.WorkDir

	// The sandbox runs in its own process group so a wall-clock kill takes
	// the whole tree down.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	// A descendant that left the group may still hold the output pipes.
	cmd.WaitDelay = waitDelay

	if cfg.Stdin != "" {
		cmd.Stdin = strings.NewReader(cfg.Stdin)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	s.logger.Debug().
		Str("profile", cfg.Profile.String()).
		Strs("command", cfg.Command).
		Int("cpu_limit_sec", cfg.CPUTimeLimit).
		Msg("sandbox executing")

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: starting %s: %v", ErrLaunch, s.binary, err)
	}
	runErr := cmd.Wait()
	duration := time.Since(start)

	res := &Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: duration,
	}

	if runErr != nil {
		res.TimedOut = ctx.Err() != nil

		var exitErr *exec.ExitError
		switch {
		case errors.As(runErr, &exitErr):
			res.ExitCode = exitErr.ExitCode()
			if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
				res.Signal = status.Signal()
			} else {
				res.Signal = signalFromStatus(res.ExitCode)
			}
		case res.TimedOut:
			res.ExitCode = -1
		case errors.Is(runErr, exec.ErrWaitDelay):
			// Exited cleanly; only a lingering descendant kept the pipes open.
		default:
			return nil, fmt.Errorf("waiting for sandbox: %w", runErr)
		}
	}

	s.logger.Debug().
		Str("profile", cfg.Profile.String()).
		Int("exit_code", res.ExitCode).
		Dur("duration", duration).
		Int("stdout_bytes", stdout.Len()).
		Int("stderr_bytes", stderr.Len()).
		Msg("sandbox execution completed")

	return res, nil
}
