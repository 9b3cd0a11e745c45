package runtime

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/docsdeploy/internal/config"
)

// stubInterpreter places a fake interpreter on PATH that reports the given
// version string.
func stubInterpreter(t *testing.T, name, output string) {
	t.Helper()
	dir := t.TempDir()
	script := "#!/bin/sh\necho \"" + output + "\"\n"
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	t.Setenv("PATH", dir+string(os.PathListSeparator)+os.Getenv("PATH"))
}

func TestProvisionMatchesPin(t *testing.T) {
	stubInterpreter(t, "fakepython", "Python 3.10.12")
	p := NewProvisioner(config.RuntimeConfig{Command: "fakepython", Version: "3.10"})

	interp, err := p.Provision(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "3.10.12", interp.Version)
	assert.NotEmpty(t, interp.Command)
}

func TestProvisionMajorOnlyPin(t *testing.T) {
	stubInterpreter(t, "fakepython", "Python 3.12.1")
	p := NewProvisioner(config.RuntimeConfig{Command: "fakepython", Version: "3"})

	_, err := p.Provision(context.Background())
	require.NoError(t, err)
}

func TestProvisionVersionMismatch(t *testing.T) {
	stubInterpreter(t, "fakepython", "Python 2.7.18")
	p := NewProvisioner(config.RuntimeConfig{Command: "fakepython", Version: "3"})

	_, err := p.Provision(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not satisfy")
}

func TestProvisionMissingBinary(t *testing.T) {
	p := NewProvisioner(config.RuntimeConfig{Command: "definitely-not-installed-xyz", Version: "3"})
	_, err := p.Provision(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found on PATH")
}

func TestVersionMatchesSegmentWise(t *testing.T) {
	assert.True(t, versionMatches("3.10", "3.10.12"))
	assert.True(t, versionMatches("3", "3.1.4"))
	assert.False(t, versionMatches("3.1", "3.10.12"), "3.1 must not prefix-match 3.10")
	assert.False(t, versionMatches("3.10.12.1", "3.10.12"))
}

func TestProvisionUnparsableVersion(t *testing.T) {
	stubInterpreter(t, "fakepython", "no digits here")
	p := NewProvisioner(config.RuntimeConfig{Command: "fakepython"})
	_, err := p.Provision(context.Background())
	require.Error(t, err)
}
