package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-units"
	"github.com/itstheanurag/coderunner/internal/metrics"
	"github.com/rs/zerolog"
)

// DockerSandbox runs every compile and run in a fresh container. The scratch
// directory is bind-mounted at the same path so workspace paths stay valid.
type DockerSandbox struct {
	cli    *client.Client
	policy Policy
	logger *zerolog.Logger
	images sync.Map // image -> struct{}, already present locally
}

func NewDockerSandbox(policy Policy, logger *zerolog.Logger) (*DockerSandbox, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, err
	}
	return &DockerSandbox{cli: cli, policy: policy, logger: logger}, nil
}

func (s *DockerSandbox) Close() error {
	return s.cli.Close()
}

func (s *DockerSandbox) Check(ctx context.Context, req Requirement) error {
	if req.Image == "" {
		return nil
	}
	if err := s.EnsureImage(ctx, req.Image); err != nil {
		return fmt.Errorf("%w: %v", ErrLaunch, err)
	}
	return nil
}

func (s *DockerSandbox) Run(ctx context.Context, cfg RunConfig) (*Result, error) {
	if len(cfg.Command) == 0 {
		return nil, fmt.Errorf("%w: empty command", ErrLaunch)
	}
	if err := s.Check(ctx, Requirement{Image: cfg.Image}); err != nil {
		return nil, err
	}

	hostCfg, err := s.hostConfig(cfg)
	if err != nil {
		return nil, err
	}

	withStdin := cfg.Stdin != ""
	createStart := time.Now()

	// Security: no network, no capabilities, runs as the service user
	resp, err := s.cli.ContainerCreate(ctx, &container.Config{
		Image:           cfg.Image,
		Cmd:             cfg.Command,
		WorkingDir:      cfg.WorkDir,
		User:            fmt.Sprintf("%d:%d", os.Getuid(), os.Getgid()),
		Env:             []string{"HOME=/tmp", "TMPDIR=/tmp", "GOCACHE=/tmp/.gocache"},
		Tty:             false,
		OpenStdin:       withStdin,
		StdinOnce:       withStdin,
		AttachStdin:     withStdin,
		AttachStdout:    true,
		AttachStderr:    true,
		NetworkDisabled: true,
	}, hostCfg, nil, nil, "")
	if err != nil {
		return nil, fmt.Errorf("%w: creating container: %v", ErrLaunch, err)
	}
	defer s.cli.ContainerRemove(context.Background(), resp.ID, container.RemoveOptions{Force: true})

	attachResp, err := s.cli.ContainerAttach(ctx, resp.ID, container.AttachOptions{
		Stream: true,
		Stdin:  withStdin,
		Stdout: true,
		Stderr: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: attaching container: %v", ErrLaunch, err)
	}
	defer attachResp.Close()

	start := time.Now()
	if err := s.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return nil, fmt.Errorf("%w: starting container: %v", ErrLaunch, err)
	}
	metrics.ContainerCreationTime.Observe(float64(time.Since(createStart).Milliseconds()))

	if withStdin {
		_, _ = attachResp.Conn.Write([]byte(cfg.Stdin))
		_ = attachResp.CloseWrite()
	}

	var stdout, stderr bytes.Buffer
	done := make(chan error, 1)
	go func() {
		_, err := stdcopy.StdCopy(&stdout, &stderr, attachResp.Reader)
		done <- err
	}()

	res := &Result{}
	statusCh, errCh := s.cli.ContainerWait(ctx, resp.ID, container.WaitConditionNotRunning)
	select {
	case status := <-statusCh:
		res.ExitCode = int(status.StatusCode)
	case err := <-errCh:
		if ctx.Err() == nil {
			return nil, fmt.Errorf("waiting for container: %w", err)
		}
		res.TimedOut = true
		res.ExitCode = -1
		_ = s.cli.ContainerKill(context.Background(), resp.ID, "KILL")
	}

	if err := <-done; err != nil && !res.TimedOut {
		return nil, fmt.Errorf("failed to read execution logs: %w", err)
	}

	res.Stdout = stdout.String()
	res.Stderr = stderr.String()
	res.Duration = time.Since(start)
	res.Signal = signalFromStatus(res.ExitCode)

	s.logger.Debug().
		Str("container", resp.ID).
		Str("profile", cfg.Profile.String()).
		Int("exit_code", res.ExitCode).
		Dur("duration", res.Duration).
		Msg("container execution completed")

	return res, nil
}

// blacklistTmpfs is mounted over every blacklisted path in the execute
// profile. It stays writable so the runtime can still place /etc/hosts and
// friends; mode 000 and dropped capabilities keep the program out.
const blacklistTmpfs = "rw,noexec,nosuid,nodev,size=64k,mode=000"

func (s *DockerSandbox) hostConfig(cfg RunConfig) (*container.HostConfig, error) {
	pidsLimit := s.policy.PIDsLimit

	mode := "ro"
	if cfg.Profile == ProfileCompile {
		mode = "rw"
	}

	hostCfg := &container.HostConfig{
		Binds:       []string{fmt.Sprintf("%s:%s:%s", cfg.WorkDir, cfg.WorkDir, mode)},
		NetworkMode: "none",
		SecurityOpt: []string{"no-new-privileges"},
		CapDrop:     []string{"ALL"},
		Tmpfs: map[string]string{
			"/tmp": "rw,exec,nosuid,size=256m,mode=1777",
		},
		Resources: container.Resources{
			PidsLimit: &pidsLimit,
		},
	}

	if cfg.CPUTimeLimit > 0 {
		hostCfg.Resources.Ulimits = []*units.Ulimit{
			{Name: "cpu", Soft: int64(cfg.CPUTimeLimit), Hard: int64(cfg.CPUTimeLimit)},
		}
	}

	if cfg.Profile == ProfileExecute {
		for _, p := range s.policy.Blacklist {
			if !path.IsAbs(p) {
				return nil, fmt.Errorf("blacklist path %q is not absolute", p)
			}
			hostCfg.Tmpfs[path.Clean(p)] = blacklistTmpfs
		}
	}

	if cfg.Profile == ProfileExecute && len(s.policy.SeccompAllow) > 0 {
		profile, err := s.policy.dockerSeccomp()
		if err != nil {
			return nil, fmt.Errorf("rendering seccomp profile: %w", err)
		}
		hostCfg.SecurityOpt = append(hostCfg.SecurityOpt, "seccomp="+profile)
	}

	return hostCfg, nil
}

func (s *DockerSandbox) EnsureImage(ctx context.Context, img string) error {
	if _, ok := s.images.Load(img); ok {
		return nil
	}

	_, _, err := s.cli.ImageInspectWithRaw(ctx, img)
	if err == nil {
		s.images.Store(img, struct{}{})
		return nil
	}

	s.logger.Info().Str("image", img).Msg("pulling docker image")
	reader, err := s.cli.ImagePull(ctx, img, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image %s: %w", img, err)
	}
	defer reader.Close()

	// Important: must consume the reader to finish the pull
	_, _ = io.Copy(io.Discard, reader)

	s.images.Store(img, struct{}{})
	s.logger.Info().Str("image", img).Msg("successfully pulled docker image")
	return nil
}
