package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/itstheanurag/coderunner/internal/languages"
	"github.com/itstheanurag/coderunner/internal/metrics"
	"github.com/itstheanurag/coderunner/internal/sandbox"
	"github.com/itstheanurag/coderunner/internal/workspace"
)

// Program is what the run step executes.
type Program struct {
	Path string
	Args []string
}

func (p Program) command() []string {
	return append([]string{p.Path}, p.Args...)
}

// compile turns the entry's source into a runnable program. Interpreted
// languages skip the sandbox entirely. A non-nil outcome means compilation
// failed and nothing must be executed.
func (e *Executor) compile(ctx context.Context, lang languages.Language, entry *workspace.Entry) (Program, *Outcome, error) {
	if !lang.Compiled() {
		path, args := lang.RunCommand(entry.Source, entry.Artifact)
		return Program{Path: path, Args: args}, nil, nil
	}

	start := time.Now()
	res, err := e.sandbox.Run(ctx, sandbox.RunConfig{
		Profile:      sandbox.ProfileCompile,
		Image:        lang.Image,
		Command:      lang.CompileCommand(entry.Source, entry.Artifact),
		WorkDir:      e.workspace.Root,
		CPUTimeLimit: e.opts.CompileCPULimit,
	})
	if err != nil {
		return Program{}, nil, fmt.Errorf("compiling %s: %w", lang.ID, err)
	}
	metrics.ExecutionDuration.WithLabelValues(string(lang.ID), "compile").
		Observe(float64(time.Since(start).Milliseconds()))

	if err := entry.DiscardSource(); err != nil {
		e.logger.Warn().Err(err).Str("path", entry.Source).Msg("failed to remove compiled source")
	}

	if outcome := classifyCompile(res); outcome != nil {
		return Program{}, outcome, nil
	}

	path, args := lang.RunCommand(entry.Source, entry.Artifact)
	return Program{Path: path, Args: args}, nil, nil
}
