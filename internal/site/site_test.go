package site

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/docsdeploy/internal/config"
)

func stubGenerator(t *testing.T, name, script string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755))
	t.Setenv("PATH", dir+string(os.PathListSeparator)+os.Getenv("PATH"))
}

func TestBuilderRunInvokesGenerator(t *testing.T) {
	work := t.TempDir()
	// The stub records its argv and fabricates the output dir like a real
	// generator would.
	stubGenerator(t, "fakemkdocs", `echo "$@" > args.txt
while [ "$1" != "--site-dir" ] && [ -n "$1" ]; do shift; done
mkdir -p "$2"`)

	b := NewBuilder(config.BuildConfig{
		Command:    "fakemkdocs",
		ConfigFile: "docs/mkdocs.yml",
		OutputDir:  "site",
		Verbose:    true,
	})
	out, err := b.Run(context.Background(), work)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(work, "site"), out)
	assert.DirExists(t, out)

	data, err := os.ReadFile(filepath.Join(work, "args.txt"))
	require.NoError(t, err)
	assert.Equal(t, "build --config-file docs/mkdocs.yml --site-dir "+out+" --verbose\n", string(data))
}

func TestBuilderRunFailure(t *testing.T) {
	stubGenerator(t, "fakemkdocs", `echo "Config file 'mkdocs.yml' does not exist." >&2; exit 1`)

	b := NewBuilder(config.BuildConfig{Command: "fakemkdocs", ConfigFile: "mkdocs.yml", OutputDir: "site"})
	_, err := b.Run(context.Background(), t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not exist")
}

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	}
	return dir
}

func TestSweepLinksCleanSite(t *testing.T) {
	root := writeTree(t, map[string]string{
		"index.html":       `<html><body><a href="guide/">Guide</a><a href="https://example.com">ext</a><a href="#top">top</a></body></html>`,
		"guide/index.html": `<html><body><img src="../logo.png"><a href="/index.html">home</a></body></html>`,
		"logo.png":         "png",
	})

	findings, err := SweepLinks(root)
	require.NoError(t, err)
	assert.Empty(t, findings)
}

func TestSweepLinksBrokenRefs(t *testing.T) {
	root := writeTree(t, map[string]string{
		"index.html": `<html><body><a href="missing.html">gone</a><a href="nodir/">also gone</a></body></html>`,
	})

	findings, err := SweepLinks(root)
	require.NoError(t, err)
	require.Len(t, findings, 2)
	refs := []string{findings[0].Ref, findings[1].Ref}
	assert.ElementsMatch(t, []string{"missing.html", "nodir/"}, refs)
}

func TestSweepLinksQueryAndFragmentStripped(t *testing.T) {
	root := writeTree(t, map[string]string{
		"index.html": `<html><body><a href="page.html?v=2#sec">ok</a></body></html>`,
		"page.html":  `<html></html>`,
	})

	findings, err := SweepLinks(root)
	require.NoError(t, err)
	assert.Empty(t, findings)
}

func TestCheckDocsValidLinks(t *testing.T) {
	docs := writeTree(t, map[string]string{
		"intro.md":        "# Intro\n\nSee the [setup guide](guides/setup.md) or [the site](https://example.com).\n",
		"guides/setup.md": "# Setup\n\nBack to [intro](../intro.md).\n",
	})

	findings, err := CheckDocs(docs)
	require.NoError(t, err)
	assert.Empty(t, findings)
}

func TestCheckDocsBrokenMarkdownLink(t *testing.T) {
	docs := writeTree(t, map[string]string{
		"intro.md": "# Intro\n\nSee [missing](gone.md) and [empty]().\n",
	})

	findings, err := CheckDocs(docs)
	require.NoError(t, err)
	require.Len(t, findings, 2)
}

func TestCheckDocsIgnoresNonMarkdownTargets(t *testing.T) {
	docs := writeTree(t, map[string]string{
		"intro.md": "# Intro\n\n![shot](images/screen.png) and [pretty](../guide/).\n",
	})

	findings, err := CheckDocs(docs)
	require.NoError(t, err)
	assert.Empty(t, findings, "non-markdown relative targets are the generator's business")
}

func TestFindingString(t *testing.T) {
	f := Finding{File: "index.html", Ref: "x.html", Reason: "target not found in site output"}
	assert.Contains(t, f.String(), "index.html")
	assert.Contains(t, f.String(), "x.html")
}
