package layer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	dserrors "github.com/systmms/idrotate/internal/errors"
	"github.com/systmms/idrotate/internal/logging"
)

// containerWorkDir is where the runtime directory is mounted
const containerWorkDir = "/var/task"

// ContainerRunner runs a shell script in a throwaway container with
// hostDir mounted at /var/task.
type ContainerRunner interface {
	Run(ctx context.Context, image, hostDir, script string) error
}

// DockerAPI is the subset of the Docker client the runner uses
type DockerAPI interface {
	ImageInspect(ctx context.Context, imageID string, opts ...client.ImageInspectOption) (image.InspectResponse, error)
	ImagePull(ctx context.Context, ref string, options image.PullOptions) (io.ReadCloser, error)
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerWait(ctx context.Context, containerID string, condition container.WaitCondition) (<-chan container.WaitResponse, <-chan error)
	ContainerLogs(ctx context.Context, containerID string, options container.LogsOptions) (io.ReadCloser, error)
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
}

// DockerRunner runs build containers through the Docker Engine API
type DockerRunner struct {
	api    DockerAPI
	logger *logging.Logger
}

// NewDockerRunner connects using DOCKER_HOST and related variables
func NewDockerRunner(logger *logging.Logger) (*DockerRunner, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, dserrors.ServiceError("docker", "connect", err)
	}
	return NewDockerRunnerWithAPI(cli, logger), nil
}

// NewDockerRunnerWithAPI wraps an existing client
func NewDockerRunnerWithAPI(api DockerAPI, logger *logging.Logger) *DockerRunner {
	if logger == nil {
		logger = logging.Nop()
	}
	return &DockerRunner{api: api, logger: logger}
}

// Run pulls the image when missing, runs script with sh -c, and fails
// with a CommandError on a non-zero exit.
func (r *DockerRunner) Run(ctx context.Context, ref, hostDir, script string) error {
	if err := r.ensureImage(ctx, ref); err != nil {
		return err
	}

	created, err := r.api.ContainerCreate(ctx,
		&container.Config{
			Image:      ref,
			Cmd:        []string{"/bin/sh", "-c", script},
			WorkingDir: containerWorkDir,
		},
		&container.HostConfig{
			Binds: []string{hostDir + ":" + containerWorkDir},
		},
		nil, nil, "")
	if err != nil {
		return dserrors.ServiceError("docker", "container create", err)
	}
	defer func() {
		if err := r.api.ContainerRemove(context.WithoutCancel(ctx), created.ID, container.RemoveOptions{Force: true}); err != nil {
			r.logger.Warn("Failed to remove build container %s: %v", created.ID, err)
		}
	}()

	if err := r.api.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		return dserrors.ServiceError("docker", "container start", err)
	}

	var exitCode int64
	statusCh, errCh := r.api.ContainerWait(ctx, created.ID, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		if err != nil {
			return dserrors.ServiceError("docker", "container wait", err)
		}
	case status := <-statusCh:
		if status.Error != nil {
			return dserrors.ServiceError("docker", "container wait", fmt.Errorf("%s", status.Error.Message))
		}
		exitCode = status.StatusCode
	}

	stdout, stderr := r.logs(ctx, created.ID)
	r.logger.Debug("Build container output:\n%s", stdout)

	if exitCode != 0 {
		return dserrors.CommandError{
			Command:    "docker run " + ref,
			ExitCode:   int(exitCode),
			Message:    strings.TrimSpace(stderr),
			Suggestion: "Check the install output above or the pre_package_commands",
		}
	}
	return nil
}

func (r *DockerRunner) ensureImage(ctx context.Context, ref string) error {
	if _, err := r.api.ImageInspect(ctx, ref); err == nil {
		return nil
	} else if !client.IsErrNotFound(err) {
		return dserrors.ServiceError("docker", "image inspect", err)
	}

	r.logger.Info("Pulling build image %s", ref)
	rc, err := r.api.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return dserrors.ServiceError("docker", "image pull", err)
	}
	defer rc.Close()
	// The pull completes only once the progress stream is drained
	if _, err := io.Copy(io.Discard, rc); err != nil {
		return dserrors.ServiceError("docker", "image pull", err)
	}
	return nil
}

func (r *DockerRunner) logs(ctx context.Context, id string) (string, string) {
	rc, err := r.api.ContainerLogs(ctx, id, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		r.logger.Warn("Failed to read build container logs: %v", err)
		return "", ""
	}
	defer rc.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, rc); err != nil {
		r.logger.Warn("Failed to demultiplex build container logs: %v", err)
	}
	return stdout.String(), stderr.String()
}
