package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/itstheanurag/coderunner/internal/languages"
	"github.com/itstheanurag/coderunner/internal/metrics"
	"github.com/itstheanurag/coderunner/internal/sandbox"
	"github.com/itstheanurag/coderunner/internal/workspace"
	"github.com/rs/zerolog"
)

type Options struct {
	// CompileCPULimit caps compiler CPU seconds; zero leaves it unbounded.
	CompileCPULimit int
	// WallTimeout bounds a run in wall-clock time; zero leaves it unbounded.
	WallTimeout time.Duration
}

type Executor struct {
	workspace *workspace.Workspace
	sandbox   sandbox.Sandbox
	logger    *zerolog.Logger
	opts      Options
}

func NewExecutor(ws *workspace.Workspace, sb sandbox.Sandbox, logger *zerolog.Logger, opts Options) *Executor {
	return &Executor{
		workspace: ws,
		sandbox:   sb,
		logger:    logger,
		opts:      opts,
	}
}

type ExecuteOptions struct {
	Language   languages.Language
	SourceCode string
	Input      string
	TimeLimit  int // CPU seconds
}

// Execute runs one submission through materialize, compile, run and
// cleanup. The returned error is reserved for failures that say nothing
// about the submission (see IsLaunchFailure); compile and runtime failures
// are reported in the Outcome.
func (e *Executor) Execute(ctx context.Context, opts ExecuteOptions) (*Outcome, error) {
	if err := ValidateTimeLimit(opts.TimeLimit); err != nil {
		return nil, err
	}
	lang := opts.Language
	label := string(lang.ID)

	// Once started, a pipeline runs to completion; only sandbox limits stop it.
	ctx = context.WithoutCancel(ctx)

	start := time.Now()
	outcome, err := e.execute(ctx, opts)
	duration := time.Since(start)

	if err != nil {
		metrics.ExecutionsTotal.WithLabelValues(label, "error").Inc()
		if IsLaunchFailure(err) {
			metrics.LaunchFailures.WithLabelValues(label).Inc()
		}
		return nil, err
	}

	metrics.ExecutionsTotal.WithLabelValues(label, string(outcome.Status)).Inc()
	metrics.ExecutionDuration.WithLabelValues(label, "total").Observe(float64(duration.Milliseconds()))

	e.logger.Info().
		Str("language", label).
		Str("status", string(outcome.Status)).
		Dur("duration", duration).
		Msg("execution finished")

	return outcome, nil
}

func (e *Executor) execute(ctx context.Context, opts ExecuteOptions) (*Outcome, error) {
	lang := opts.Language

	if err := e.sandbox.Check(ctx, sandbox.Requirement{Binary: lang.Toolchain(), Image: lang.Image}); err != nil {
		return nil, err
	}

	entry, err := e.workspace.Materialize(lang.Extension, opts.SourceCode)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", sandbox.ErrLaunch, err)
	}
	defer func() {
		if err := entry.Release(); err != nil {
			e.logger.Warn().Err(err).Str("path", entry.Source).Msg("failed to release workspace entry")
		}
	}()

	prog, failed, err := e.compile(ctx, lang, entry)
	if err != nil {
		return nil, err
	}
	if failed != nil {
		return failed, nil
	}

	return e.run(ctx, lang, prog, opts.Input, opts.TimeLimit)
}
