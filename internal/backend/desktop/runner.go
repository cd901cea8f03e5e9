// internal/backend/desktop/runner.go
package desktop

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"go.uber.org/zap"

	"github.com/xkilldash9x/pilot/internal/config"
)

// CommandRunner executes one command inside the desktop container and returns
// its stdout. A command that ran but exited non-zero yields an *ExecError;
// any other error means the container could not be reached.
type CommandRunner interface {
	Run(ctx context.Context, cmd ...string) (string, error)
}

// Inspector reports whether the desktop container is up.
type Inspector interface {
	ContainerRunning(ctx context.Context) (bool, error)
}

// ExecError is a command that ran and failed.
type ExecError struct {
	Cmd      []string
	ExitCode int
	Stderr   string
}

func (e *ExecError) Error() string {
	msg := fmt.Sprintf("command %q exited with code %d", strings.Join(e.Cmd, " "), e.ExitCode)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}

// dockerAPI is the part of the Docker Engine client the runner uses.
type dockerAPI interface {
	ContainerExecCreate(ctx context.Context, container string, options container.ExecOptions) (container.ExecCreateResponse, error)
	ContainerExecAttach(ctx context.Context, execID string, config container.ExecAttachOptions) (types.HijackedResponse, error)
	ContainerExecInspect(ctx context.Context, execID string) (container.ExecInspect, error)
	ContainerInspect(ctx context.Context, containerID string) (container.InspectResponse, error)
}

// dockerRunner runs commands through the Docker exec API.
type dockerRunner struct {
	api       dockerAPI
	container string
	user      string
	env       []string
	timeout   time.Duration
	logger    *zap.Logger
}

var (
	_ CommandRunner = (*dockerRunner)(nil)
	_ Inspector     = (*dockerRunner)(nil)
)

// NewDockerClient creates an Engine API client from the environment, or from
// cfg.DockerHost when set.
func NewDockerClient(cfg config.DesktopConfig) (*client.Client, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if cfg.DockerHost != "" {
		opts = append(opts, client.WithHost(cfg.DockerHost))
	}
	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return cli, nil
}

func newDockerRunner(api dockerAPI, cfg config.DesktopConfig, logger *zap.Logger) *dockerRunner {
	env := []string{"DISPLAY=" + cfg.Display}
	return &dockerRunner{
		api:       api,
		container: cfg.Container,
		user:      cfg.User,
		env:       env,
		timeout:   cfg.CommandTimeout,
		logger:    logger.Named("docker_exec"),
	}
}

// Run implements CommandRunner.
func (r *dockerRunner) Run(ctx context.Context, cmd ...string) (string, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	created, err := r.api.ContainerExecCreate(ctx, r.container, container.ExecOptions{
		Cmd:          cmd,
		Env:          r.env,
		User:         r.user,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create exec in %s: %w", r.container, err)
	}

	attach, err := r.api.ContainerExecAttach(ctx, created.ID, container.ExecAttachOptions{})
	if err != nil {
		return "", fmt.Errorf("failed to attach to exec %s: %w", created.ID, err)
	}
	defer attach.Close()

	var stdout, stderr bytes.Buffer
	copied := make(chan error, 1)
	go func() {
		_, err := stdcopy.StdCopy(&stdout, &stderr, attach.Reader)
		copied <- err
	}()
	select {
	case err = <-copied:
		if err != nil {
			return "", fmt.Errorf("failed to read exec output: %w", err)
		}
	case <-ctx.Done():
		attach.Close()
		<-copied
		return "", fmt.Errorf("exec %q did not finish: %w", cmd[0], ctx.Err())
	}

	inspect, err := r.api.ContainerExecInspect(ctx, created.ID)
	if err != nil {
		return "", fmt.Errorf("failed to inspect exec %s: %w", created.ID, err)
	}
	if inspect.ExitCode != 0 {
		return stdout.String(), &ExecError{Cmd: cmd, ExitCode: inspect.ExitCode, Stderr: stderr.String()}
	}
	r.logger.Debug("Exec completed.", zap.Strings("cmd", cmd), zap.Int("stdout_bytes", stdout.Len()))
	return stdout.String(), nil
}

// ContainerRunning implements Inspector.
func (r *dockerRunner) ContainerRunning(ctx context.Context) (bool, error) {
	info, err := r.api.ContainerInspect(ctx, r.container)
	if err != nil {
		return false, fmt.Errorf("failed to inspect container %s: %w", r.container, err)
	}
	if info.ContainerJSONBase == nil || info.State == nil {
		return false, nil
	}
	return info.State.Running, nil
}

// containerLocks holds one mutex per container so that commands against the
// same container never interleave, even across adapters.
var containerLocks sync.Map

func lockFor(containerID string) *sync.Mutex {
	mu, _ := containerLocks.LoadOrStore(containerID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// sequentialRunner serializes commands for one container. xdotool state
// (focus, clipboard) is shared, so a command may only start once the previous
// one's result has been observed.
type sequentialRunner struct {
	next CommandRunner
	mu   *sync.Mutex
}

func newSequentialRunner(containerID string, next CommandRunner) *sequentialRunner {
	return &sequentialRunner{next: next, mu: lockFor(containerID)}
}

// Run implements CommandRunner.
func (s *sequentialRunner) Run(ctx context.Context, cmd ...string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next.Run(ctx, cmd...)
}
