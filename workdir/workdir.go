// Package workdir manages the scratch directory a test run owns.
package workdir

import (
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/log"
)

// Prefix seeds the scratch directory name. The random suffix MkdirTemp
// appends after the trailing underscore doubles as the run's unique token.
const Prefix = "ptf_runner_"

// Workspace is the scratch directory owned by a single test run.
type Workspace struct {
	Path string
	Keep bool // retain the directory even after a clean run
}

// Allocate creates a uniquely named scratch directory under the system temp
// root.
func Allocate(keep bool) (*Workspace, error) {
	path, err := os.MkdirTemp("", Prefix)
	if err != nil {
		return nil, fmt.Errorf("creating scratch directory: %w", err)
	}
	return &Workspace{Path: path, Keep: keep}, nil
}

// Finalize removes the workspace after a clean run. Failed runs and runs
// that asked for retention keep it for postmortem debugging. It reports
// whether the directory was removed.
func (w *Workspace) Finalize(lg log.Logger, success bool) bool {
	if !success {
		lg.Warn("run failed, keeping scratch directory", "path", w.Path)
		return false
	}
	if w.Keep {
		lg.Info("keeping scratch directory as requested", "path", w.Path)
		return false
	}
	if err := os.RemoveAll(w.Path); err != nil {
		lg.Warn("failed to remove scratch directory", "path", w.Path, "err", err)
		return false
	}
	lg.Info("removed scratch directory", "path", w.Path)
	return true
}
