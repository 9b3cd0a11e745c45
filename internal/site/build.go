// Package site invokes the external static-site generator and performs
// optional quality sweeps over its inputs and output.
package site

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"

	"git.home.luguber.info/inful/docsdeploy/internal/config"
	"git.home.luguber.info/inful/docsdeploy/internal/logfields"
)

// Builder runs the configured site generator against its config file.
type Builder struct {
	cfg config.BuildConfig
}

// NewBuilder creates a builder from configuration.
func NewBuilder(cfg config.BuildConfig) *Builder { return &Builder{cfg: cfg} }

// Run builds the site inside workDir and returns the absolute output
// directory. The generator is invoked mkdocs-style: build --config-file
// <file> --site-dir <dir>, plus --verbose when configured.
func (b *Builder) Run(ctx context.Context, workDir string) (string, error) {
	outputDir := b.cfg.OutputDir
	if !filepath.IsAbs(outputDir) {
		outputDir = filepath.Join(workDir, outputDir)
	}

	args := []string{"build", "--config-file", b.cfg.ConfigFile, "--site-dir", outputDir}
	if b.cfg.Verbose {
		args = append(args, "--verbose")
	}

	slog.Info("Building site",
		slog.String("command", b.cfg.Command),
		logfields.File(b.cfg.ConfigFile),
		logfields.Path(outputDir))

	cmd := exec.CommandContext(ctx, b.cfg.Command, args...)
	cmd.Dir = workDir

	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("site generator %s failed: %w\n%s", b.cfg.Command, err, tail(output.String(), 2048))
	}
	return outputDir, nil
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
