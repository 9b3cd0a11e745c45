// Package workspace manages the ephemeral per-run directories the deploy
// pipeline checks out and builds in. Every run gets its own directory
// named after the run ID; Cleanup removes it entirely.
package workspace

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"git.home.luguber.info/inful/docsdeploy/internal/logfields"
)

// Manager hands out per-run workspace directories under a base directory.
type Manager struct {
	baseDir string
}

// NewManager creates a workspace manager rooted at baseDir.
func NewManager(baseDir string) *Manager {
	if baseDir == "" {
		baseDir = filepath.Join(os.TempDir(), "docsdeploy")
	}
	return &Manager{baseDir: baseDir}
}

// RunDir is one run's workspace.
type RunDir struct {
	Path string
}

// Checkout returns the checkout directory inside the run workspace.
func (r RunDir) Checkout() string { return filepath.Join(r.Path, "checkout") }

// Create makes a fresh workspace directory for a run. Any leftover from a
// previous run with the same ID is removed first.
func (m *Manager) Create(runID string) (RunDir, error) {
	dir := filepath.Join(m.baseDir, runID)
	if err := os.RemoveAll(dir); err != nil {
		return RunDir{}, fmt.Errorf("clean stale workspace: %w", err)
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return RunDir{}, fmt.Errorf("create workspace directory: %w", err)
	}
	slog.Debug("Created workspace", logfields.RunID(runID), logfields.Path(dir))
	return RunDir{Path: dir}, nil
}

// Cleanup removes a run workspace.
func (m *Manager) Cleanup(rd RunDir) error {
	if rd.Path == "" {
		return nil
	}
	if err := os.RemoveAll(rd.Path); err != nil {
		return fmt.Errorf("cleanup workspace: %w", err)
	}
	slog.Debug("Cleaned up workspace", logfields.Path(rd.Path))
	return nil
}
