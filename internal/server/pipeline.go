package server

import (
	"context"
	"fmt"
	"io"

	"github.com/itstheanurag/coderunner/internal/config"
	"github.com/itstheanurag/coderunner/internal/executor"
	"github.com/itstheanurag/coderunner/internal/languages"
	"github.com/itstheanurag/coderunner/internal/sandbox"
	"github.com/itstheanurag/coderunner/internal/workspace"
	"github.com/rs/zerolog"
)

// Pipeline bundles what the executor needs. It is shared by the HTTP server
// and the one-shot run command.
type Pipeline struct {
	Workspace *workspace.Workspace
	Sandbox   sandbox.Sandbox
	Executor  *executor.Executor
	Registry  *languages.Registry
	logger    *zerolog.Logger
}

func NewPipeline(conf *config.Config, logger *zerolog.Logger) (*Pipeline, error) {
	root := conf.Workspace.Root
	if root == "" {
		root = workspace.DefaultRoot()
	}
	ws, err := workspace.New(root)
	if err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}

	sb, err := newSandbox(conf, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create sandbox: %w", err)
	}

	return &Pipeline{
		Workspace: ws,
		Sandbox:   sb,
		Executor:  executor.NewExecutor(ws, sb, logger, conf.Sandbox.ExecutorOptions()),
		Registry:  languages.NewRegistry(),
		logger:    logger,
	}, nil
}

func newSandbox(conf *config.Config, logger *zerolog.Logger) (sandbox.Sandbox, error) {
	policy := conf.Sandbox.Policy()
	switch conf.Sandbox.Backend {
	case config.BackendDocker:
		return sandbox.NewDockerSandbox(policy, logger)
	case config.BackendFirejail:
		return sandbox.NewFirejailSandbox(conf.Sandbox.Binary, policy, logger), nil
	default:
		return nil, fmt.Errorf("unknown sandbox backend %q", conf.Sandbox.Backend)
	}
}

// Sweep removes files left in the scratch root by a previous process.
func (p *Pipeline) Sweep() {
	n, err := p.Workspace.Sweep()
	if err != nil {
		p.logger.Warn().Err(err).Str("root", p.Workspace.Root).Msg("failed to sweep workspace")
	}
	if n > 0 {
		p.logger.Info().Int("removed", n).Str("root", p.Workspace.Root).Msg("removed stale workspace files")
	}
}

// Preflight checks the sandbox and every toolchain, pulling images on the
// docker backend. Languages that fail are logged and reported, but do not
// stop the service; requests for them fail with a launch error.
func (p *Pipeline) Preflight(ctx context.Context) []languages.ID {
	var unavailable []languages.ID
	for _, lang := range p.Registry.List() {
		err := p.Sandbox.Check(ctx, sandbox.Requirement{Binary: lang.Toolchain(), Image: lang.Image})
		if err != nil {
			p.logger.Warn().Err(err).Str("language", string(lang.ID)).Msg("language unavailable")
			unavailable = append(unavailable, lang.ID)
		}
	}
	return unavailable
}

func (p *Pipeline) Close() error {
	if c, ok := p.Sandbox.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
