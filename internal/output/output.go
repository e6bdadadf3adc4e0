// Package output reads what a sandbox left behind in its workspace.
package output

import (
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/itstheanurag/fnrunner/internal/failure"
	"github.com/itstheanurag/fnrunner/internal/workspace"
)

// Placeholder is returned in place of a missing or malformed output.json.
func Placeholder() map[string]any {
	return map[string]any{"error": failure.ErrOutputParse.Error()}
}

type Collector struct {
	fs     afero.Fs
	logger *zerolog.Logger
}

func NewCollector(fs afero.Fs, logger *zerolog.Logger) *Collector {
	return &Collector{fs: fs, logger: logger}
}

// Collect never fails: unreadable output degrades to Placeholder.
func (c *Collector) Collect(ws *workspace.Workspace) any {
	result, err := c.read(ws)
	if err != nil {
		c.logger.Warn().
			Err(errors.Mark(err, failure.ErrOutputParse)).
			Str("workspace", ws.ID).
			Msg("function produced no valid output")
		return Placeholder()
	}
	return result
}

func (c *Collector) read(ws *workspace.Workspace) (any, error) {
	raw, err := afero.ReadFile(c.fs, ws.Path(workspace.OutputFile))
	if err != nil {
		return nil, errors.Wrap(err, "read output")
	}
	var result any
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, errors.Wrap(err, "decode output")
	}
	return result, nil
}
