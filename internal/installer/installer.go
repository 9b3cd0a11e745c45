// Package installer runs the package-install command against the
// dependency manifest. Failure is fatal to the run; there is no
// partial-install recovery.
package installer

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"git.home.luguber.info/inful/docsdeploy/internal/config"
	"git.home.luguber.info/inful/docsdeploy/internal/logfields"
)

// ManifestPlaceholder in install args is replaced with the manifest path.
const ManifestPlaceholder = "{manifest}"

// Installer executes the configured install command inside the checkout.
type Installer struct {
	cfg config.InstallConfig
}

// New creates an installer from configuration.
func New(cfg config.InstallConfig) *Installer { return &Installer{cfg: cfg} }

// Run installs dependencies in workDir. Extra environment entries (e.g. a
// cache directory override) are appended to the inherited environment.
func (i *Installer) Run(ctx context.Context, workDir string, extraEnv []string) error {
	args := make([]string, 0, len(i.cfg.Args))
	for _, a := range i.cfg.Args {
		args = append(args, strings.ReplaceAll(a, ManifestPlaceholder, i.cfg.Manifest))
	}

	slog.Info("Installing dependencies",
		slog.String("command", i.cfg.Command),
		slog.Any("args", args),
		logfields.File(i.cfg.Manifest))

	cmd := exec.CommandContext(ctx, i.cfg.Command, args...)
	cmd.Dir = workDir
	if len(extraEnv) > 0 {
		cmd.Env = append(cmd.Environ(), extraEnv...)
	}

	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("install command %s failed: %w\n%s", i.cfg.Command, err, tail(output.String(), 2048))
	}
	return nil
}

// tail returns at most n trailing bytes of s, for error context.
func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
