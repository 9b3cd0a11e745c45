// Package runtime verifies that the pinned interpreter the installer and
// site generator depend on is present before any network work starts.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"regexp"
	"strings"

	"git.home.luguber.info/inful/docsdeploy/internal/config"
)

// Interpreter describes a provisioned runtime.
type Interpreter struct {
	Command string // resolved absolute path
	Version string // e.g. "3.10.12"
}

// Provisioner locates and version-checks the configured interpreter.
// Failure is fatal to the run: there is no download-and-install fallback,
// the host is expected to carry the runtime.
type Provisioner struct {
	cfg config.RuntimeConfig
}

// NewProvisioner creates a provisioner for the given runtime configuration.
func NewProvisioner(cfg config.RuntimeConfig) *Provisioner { return &Provisioner{cfg: cfg} }

var versionPattern = regexp.MustCompile(`\d+(?:\.\d+)*`)

// Provision resolves the interpreter binary and verifies its version
// against the pinned version string. Pinning is segment-wise: "3" accepts
// 3.10.12, "3.10" accepts 3.10.x but rejects 3.1.x.
func (p *Provisioner) Provision(ctx context.Context) (*Interpreter, error) {
	path, err := exec.LookPath(p.cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("interpreter %q not found on PATH: %w", p.cfg.Command, err)
	}

	out, err := exec.CommandContext(ctx, path, "--version").CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("query %s --version: %w", p.cfg.Command, err)
	}
	version := versionPattern.FindString(string(out))
	if version == "" {
		return nil, fmt.Errorf("cannot parse version from %q", strings.TrimSpace(string(out)))
	}

	if p.cfg.Version != "" && !versionMatches(p.cfg.Version, version) {
		return nil, fmt.Errorf("interpreter version %s does not satisfy pinned %s", version, p.cfg.Version)
	}

	slog.Info("Interpreter provisioned",
		slog.String("command", path),
		slog.String("version", version))
	return &Interpreter{Command: path, Version: version}, nil
}

// versionMatches reports whether actual satisfies the pinned version as a
// dotted-segment prefix.
func versionMatches(pinned, actual string) bool {
	want := strings.Split(pinned, ".")
	got := strings.Split(actual, ".")
	if len(want) > len(got) {
		return false
	}
	for i, seg := range want {
		if got[i] != seg {
			return false
		}
	}
	return true
}
