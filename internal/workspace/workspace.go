// Package workspace provisions the per-invocation directory a sandbox mounts
// and guarantees it is removed afterwards.
package workspace

import (
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/itstheanurag/fnrunner/internal/failure"
	"github.com/itstheanurag/fnrunner/internal/languages"
	"github.com/itstheanurag/fnrunner/internal/metrics"
	"github.com/itstheanurag/fnrunner/internal/model"
)

const (
	InputFile  = "input.json"
	OutputFile = "output.json"
)

// Workspace is exclusively owned by one invocation.
type Workspace struct {
	ID  string
	Dir string
}

func (w *Workspace) Path(name string) string {
	return filepath.Join(w.Dir, name)
}

type Provisioner struct {
	fs       afero.Fs
	root     string
	registry *languages.Registry
	logger   *zerolog.Logger
}

func NewProvisioner(fs afero.Fs, root string, registry *languages.Registry, logger *zerolog.Logger) *Provisioner {
	return &Provisioner{
		fs:       fs,
		root:     root,
		registry: registry,
		logger:   logger,
	}
}

func (p *Provisioner) Root() string {
	return p.root
}

// Provision creates a fresh workspace holding the entry file, any manifests
// and input.json. When an error is returned after the directory exists, the
// workspace is returned as well so the caller can still release it.
func (p *Provisioner) Provision(def *model.Definition, input model.InvocationContext) (*Workspace, error) {
	lang, err := p.registry.Get(def.Language)
	if err != nil {
		return nil, err
	}

	payload, err := input.Marshal()
	if err != nil {
		return nil, failure.Provisioning(errors.Wrap(err, "encode input"))
	}

	if err := p.fs.MkdirAll(p.root, 0o755); err != nil {
		return nil, failure.Provisioning(errors.Wrapf(err, "create workspace root %s", p.root))
	}

	id := uuid.NewString()
	ws := &Workspace{ID: id, Dir: filepath.Join(p.root, id)}

	// Mkdir, not MkdirAll: an existing directory means a collision.
	if err := p.fs.Mkdir(ws.Dir, 0o777); err != nil {
		return nil, failure.Provisioning(errors.Wrapf(err, "create workspace %s", id))
	}
	// Mkdir is subject to the umask; sandboxes may run as another user.
	if err := p.fs.Chmod(ws.Dir, 0o777); err != nil {
		return ws, failure.Provisioning(errors.Wrap(err, "chmod workspace"))
	}

	if err := afero.WriteFile(p.fs, ws.Path(lang.Config.EntryFile), []byte(def.Code), 0o644); err != nil {
		return ws, failure.Provisioning(errors.Wrapf(err, "write %s", lang.Config.EntryFile))
	}
	for name, content := range lang.Config.Manifests {
		if err := afero.WriteFile(p.fs, ws.Path(name), content, 0o644); err != nil {
			return ws, failure.Provisioning(errors.Wrapf(err, "write %s", name))
		}
	}
	if err := afero.WriteFile(p.fs, ws.Path(InputFile), payload, 0o644); err != nil {
		return ws, failure.Provisioning(errors.Wrapf(err, "write %s", InputFile))
	}

	p.logger.Debug().Str("workspace", id).Str("function", def.ID).Msg("workspace provisioned")
	return ws, nil
}

// Release removes the workspace. Failures are logged, never returned.
func (p *Provisioner) Release(ws *Workspace) {
	if ws == nil {
		return
	}

	err := p.fs.RemoveAll(ws.Dir)
	if err == nil {
		return
	}
	p.logger.Warn().Err(err).Str("workspace", ws.ID).Msg("workspace removal failed, retrying with manual traversal")

	if err := p.removeTree(ws.Dir); err != nil {
		metrics.WorkspaceCleanupFailures.Inc()
		p.logger.Error().
			Err(errors.Mark(err, failure.ErrCleanup)).
			Str("workspace", ws.ID).
			Str("dir", ws.Dir).
			Msg("workspace left behind")
	}
}

// removeTree deletes path depth-first, making directories writable on the
// way down. Sandboxes can leave files the host user cannot unlink otherwise.
func (p *Provisioner) removeTree(path string) error {
	info, err := p.fs.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if !info.IsDir() {
		return p.fs.Remove(path)
	}

	_ = p.fs.Chmod(path, 0o700)

	entries, err := afero.ReadDir(p.fs, path)
	if err != nil {
		return err
	}

	var firstErr error
	for _, entry := range entries {
		child := filepath.Join(path, entry.Name())
		var err error
		if entry.IsDir() {
			err = p.removeTree(child)
		} else {
			err = p.fs.Remove(child)
		}
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		return firstErr
	}
	return p.fs.Remove(path)
}
