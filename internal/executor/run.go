package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/itstheanurag/coderunner/internal/languages"
	"github.com/itstheanurag/coderunner/internal/metrics"
	"github.com/itstheanurag/coderunner/internal/sandbox"
)

// run executes prog under the execute profile with the caller's CPU limit.
// Input reaches the program's stdin only when non-empty.
func (e *Executor) run(ctx context.Context, lang languages.Language, prog Program, input string, cpuLimit int) (*Outcome, error) {
	if e.opts.WallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.WallTimeout)
		defer cancel()
	}

	start := time.Now()
	res, err := e.sandbox.Run(ctx, sandbox.RunConfig{
		Profile:      sandbox.ProfileExecute,
		Image:        lang.Image,
		Command:      prog.command(),
		WorkDir:      e.workspace.Root,
		Stdin:        input,
		CPUTimeLimit: cpuLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("running %s: %w", lang.ID, err)
	}
	metrics.ExecutionDuration.WithLabelValues(string(lang.ID), "run").
		Observe(float64(time.Since(start).Milliseconds()))

	if res.Terminated() {
		e.logger.Debug().
			Str("language", string(lang.ID)).
			Str("reason", sandbox.Describe(res)).
			Msg("program terminated by sandbox")
	}

	return classifyRun(res), nil
}
