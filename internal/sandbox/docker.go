package sandbox

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/rs/zerolog"
)

const managedLabel = "io.fnrunner.managed"

type pendingWait struct {
	status <-chan container.WaitResponse
	errs   <-chan error
	cancel context.CancelFunc
}

type DockerSandbox struct {
	cli    *client.Client
	logger *zerolog.Logger
	waits  sync.Map // container id -> *pendingWait
}

func NewDockerSandbox(logger *zerolog.Logger) (*DockerSandbox, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, err
	}
	return &DockerSandbox{cli: cli, logger: logger}, nil
}

func containerConfig(spec Spec) *container.Config {
	return &container.Config{
		Image:           spec.Image,
		Cmd:             spec.Cmd,
		Tty:             false,
		NetworkDisabled: true,
		WorkingDir:      spec.MountPath,
		Labels:          map[string]string{managedLabel: "true"},
	}
}

func hostConfig(spec Spec) *container.HostConfig {
	pidsLimit := spec.Limits.PidsLimit
	return &container.HostConfig{
		Binds:      []string{fmt.Sprintf("%s:%s:rw", spec.HostDir, spec.MountPath)},
		AutoRemove: true,
		Resources: container.Resources{
			Memory:     spec.Limits.MemoryBytes,
			MemorySwap: spec.Limits.MemorySwapBytes,
			CPUPeriod:  spec.Limits.CPUPeriod,
			CPUQuota:   spec.Limits.CPUQuota,
			PidsLimit:  &pidsLimit,
		},
		NetworkMode: "none",
		SecurityOpt: []string{"no-new-privileges"},
		CapDrop:     []string{"ALL"},
	}
}

func (s *DockerSandbox) Create(ctx context.Context, spec Spec) (string, error) {
	resp, err := s.cli.ContainerCreate(ctx, containerConfig(spec), hostConfig(spec), nil, nil, spec.Name)
	if err != nil {
		return "", fmt.Errorf("failed to create container: %w", err)
	}
	for _, w := range resp.Warnings {
		s.logger.Warn().Str("container", resp.ID).Msg(w)
	}
	return resp.ID, nil
}

// Start registers the wait before starting: with AutoRemove the container
// may be gone before a later ContainerWait could attach.
func (s *DockerSandbox) Start(ctx context.Context, id string) error {
	waitCtx, cancel := context.WithCancel(context.Background())
	status, errs := s.cli.ContainerWait(waitCtx, id, container.WaitConditionRemoved)
	s.waits.Store(id, &pendingWait{status: status, errs: errs, cancel: cancel})

	if err := s.cli.ContainerStart(ctx, id, container.StartOptions{}); err != nil {
		s.abandonWait(id)
		return fmt.Errorf("failed to start container: %w", err)
	}
	return nil
}

func (s *DockerSandbox) Wait(ctx context.Context, id string) (int64, error) {
	v, ok := s.waits.Load(id)
	if !ok {
		return -1, fmt.Errorf("container %s was not started", id)
	}
	w := v.(*pendingWait)

	select {
	case resp := <-w.status:
		s.forgetWait(id)
		if resp.Error != nil && resp.Error.Message != "" {
			return resp.StatusCode, fmt.Errorf("container wait: %s", resp.Error.Message)
		}
		return resp.StatusCode, nil
	case err := <-w.errs:
		s.forgetWait(id)
		return -1, fmt.Errorf("container wait: %w", err)
	case <-ctx.Done():
		s.abandonWait(id)
		return -1, ctx.Err()
	}
}

func (s *DockerSandbox) forgetWait(id string) {
	if v, ok := s.waits.LoadAndDelete(id); ok {
		v.(*pendingWait).cancel()
	}
}

// abandonWait stops a wait nobody will read; the client goroutine behind it
// still has to deliver its one value somewhere.
func (s *DockerSandbox) abandonWait(id string) {
	v, ok := s.waits.LoadAndDelete(id)
	if !ok {
		return
	}
	w := v.(*pendingWait)
	w.cancel()
	go func() {
		select {
		case <-w.status:
		case <-w.errs:
		}
	}()
}

func (s *DockerSandbox) Kill(ctx context.Context, id string) error {
	err := s.cli.ContainerKill(ctx, id, "SIGKILL")
	if err != nil && !gone(err) {
		return fmt.Errorf("failed to kill container: %w", err)
	}
	return nil
}

// Remove force-removes the container; one that auto-removal already took
// care of is not an error.
func (s *DockerSandbox) Remove(ctx context.Context, id string) error {
	s.abandonWait(id)
	err := s.cli.ContainerRemove(ctx, id, container.RemoveOptions{Force: true})
	if err != nil && !gone(err) {
		return fmt.Errorf("failed to remove container: %w", err)
	}
	return nil
}

func gone(err error) bool {
	return errdefs.IsNotFound(err) || errdefs.IsConflict(err)
}

func (s *DockerSandbox) EnsureImage(ctx context.Context, img string) error {
	_, _, err := s.cli.ImageInspectWithRaw(ctx, img)
	if err == nil {
		return nil // Image already exists
	}

	s.logger.Info().Str("image", img).Msg("pulling docker image")
	reader, err := s.cli.ImagePull(ctx, img, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image %s: %w", img, err)
	}
	defer reader.Close()

	// Important: must consume the reader to finish the pull
	_, _ = io.Copy(io.Discard, reader)

	s.logger.Info().Str("image", img).Msg("successfully pulled docker image")
	return nil
}

func (s *DockerSandbox) Close() error {
	return s.cli.Close()
}
