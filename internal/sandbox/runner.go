package sandbox

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"

	"github.com/itstheanurag/fnrunner/internal/failure"
	"github.com/itstheanurag/fnrunner/internal/languages"
	"github.com/itstheanurag/fnrunner/internal/metrics"
	"github.com/itstheanurag/fnrunner/internal/model"
	"github.com/itstheanurag/fnrunner/internal/workspace"
)

var _ Provider = (*DockerSandbox)(nil)

// Runner starts one sandbox per invocation and supervises it against the
// invocation's deadline.
type Runner struct {
	registry    *languages.Registry
	provider    Provider
	killTimeout time.Duration
	logger      *zerolog.Logger
}

func NewRunner(registry *languages.Registry, provider Provider, killTimeout time.Duration, logger *zerolog.Logger) *Runner {
	return &Runner{
		registry:    registry,
		provider:    provider,
		killTimeout: killTimeout,
		logger:      logger,
	}
}

// Run executes the workspace's entry file and returns nil only for a clean
// exit within timeout. The execution unit is removed on every path.
func (r *Runner) Run(ctx context.Context, language model.Language, ws *workspace.Workspace, timeout time.Duration) error {
	lang, err := r.registry.Get(language)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	spec := Spec{
		Name:      "fnrunner-" + ws.ID,
		Image:     lang.Config.Image,
		Cmd:       lang.Config.RunCommand,
		HostDir:   ws.Dir,
		MountPath: languages.MountPath,
		Limits:    DefaultLimits(),
	}

	started := time.Now()
	id, err := r.provider.Create(ctx, spec)
	if err != nil {
		// The daemon may have created the unit before the call failed; it
		// never started, so auto-removal will not reclaim it.
		r.release(spec.Name)
		return startFailure(ctx, err)
	}
	defer r.release(id)

	if err := r.provider.Start(ctx, id); err != nil {
		return startFailure(ctx, err)
	}
	metrics.SandboxStartTime.Observe(float64(time.Since(started).Milliseconds()))

	log := r.logger.With().Str("sandbox", id).Str("workspace", ws.ID).Logger()
	log.Debug().Str("image", spec.Image).Dur("timeout", timeout).Msg("sandbox started")

	code, err := r.provider.Wait(ctx, id)
	if err != nil {
		// Deadline, caller cancellation or a broken wait: the unit may still
		// be running either way.
		r.kill(id, &log)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			log.Info().Dur("timeout", timeout).Msg("sandbox timed out")
			return failure.Timeout()
		}
		return errors.Wrap(err, "wait for sandbox")
	}

	if code != 0 {
		return failure.NonZeroExit(code)
	}
	return nil
}

func startFailure(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return failure.Timeout()
	}
	return failure.SandboxStart(err)
}

func (r *Runner) kill(id string, log *zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), r.killTimeout)
	defer cancel()
	if err := r.provider.Kill(ctx, id); err != nil {
		log.Error().Err(err).Msg("failed to terminate sandbox")
	}
}

func (r *Runner) release(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), r.killTimeout)
	defer cancel()
	if err := r.provider.Remove(ctx, id); err != nil {
		r.logger.Error().Err(err).Str("sandbox", id).Msg("failed to remove sandbox")
	}
}

// EnsureImages pulls every runtime image the language table references.
func (r *Runner) EnsureImages(ctx context.Context) error {
	seen := make(map[string]bool)
	for _, l := range r.registry.List() {
		if seen[l.Config.Image] {
			continue
		}
		seen[l.Config.Image] = true
		if err := r.provider.EnsureImage(ctx, l.Config.Image); err != nil {
			return err
		}
	}
	return nil
}
