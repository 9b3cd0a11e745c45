package config

import (
	"path"
	"strings"
)

// Default values mirror a conventional docs-deploy setup: pushes to master
// touching the docs tree or the site config trigger a force-publish of the
// generated site to gh-pages.
const (
	DefaultBranch        = "master"
	DefaultPublishBranch = "gh-pages"
	DefaultRuntime       = "python3"
	DefaultInstallCmd    = "pip"
	DefaultBuildCmd      = "mkdocs"
	DefaultCacheDir      = ".docsdeploy/cache"
	DefaultHistoryPath   = ".docsdeploy/history.db"
	DefaultWorkspaceDir  = ".docsdeploy/workspace"
	DefaultServerAddr    = ":8466"
	DefaultWebhookPath   = "/webhooks/push"
	DefaultWatchDebounce = "2s"
)

// ApplyDefaults fills zero-valued fields in place. Safe to call more than once.
func (c *Config) ApplyDefaults() {
	if c.Repository.Name == "" && c.Repository.URL != "" {
		c.Repository.Name = repoNameFromURL(c.Repository.URL)
	}

	if c.Trigger.Branch == "" {
		c.Trigger.Branch = DefaultBranch
	}
	if len(c.Trigger.Paths) == 0 {
		c.Trigger.Paths = []string{"docs/**"}
		if c.Build.ConfigFile != "" {
			c.Trigger.Paths = append(c.Trigger.Paths, c.Build.ConfigFile)
		}
	}

	if c.Runtime.Command == "" {
		c.Runtime.Command = DefaultRuntime
	}

	if c.Cache.Dir == "" {
		c.Cache.Dir = DefaultCacheDir
	}
	if c.Cache.Manifest == "" {
		c.Cache.Manifest = c.Install.Manifest
	}

	if c.Install.Command == "" {
		c.Install.Command = DefaultInstallCmd
	}
	if len(c.Install.Args) == 0 {
		c.Install.Args = []string{"install", "-r", "{manifest}"}
	}
	if c.Install.CacheEnv == "" {
		c.Install.CacheEnv = "PIP_CACHE_DIR"
	}

	if c.Build.Command == "" {
		c.Build.Command = DefaultBuildCmd
	}
	if c.Build.OutputDir == "" {
		c.Build.OutputDir = "site"
	}
	if c.Build.DocsDir == "" {
		c.Build.DocsDir = "docs"
	}

	if c.Publish.Branch == "" {
		c.Publish.Branch = DefaultPublishBranch
	}
	if c.Publish.RemoteURL == "" {
		c.Publish.RemoteURL = c.Repository.URL
	}
	if c.Publish.CommitterName == "" {
		c.Publish.CommitterName = "docsdeploy"
	}
	if c.Publish.CommitterEmail == "" {
		c.Publish.CommitterEmail = "docsdeploy@localhost"
	}

	if c.Workspace.Dir == "" {
		c.Workspace.Dir = DefaultWorkspaceDir
	}

	if c.Server.Addr == "" {
		c.Server.Addr = DefaultServerAddr
	}
	if c.Server.WebhookPath == "" {
		c.Server.WebhookPath = DefaultWebhookPath
	}

	if c.Watch.Enabled {
		if c.Watch.Dir == "" {
			c.Watch.Dir = "docs"
		}
		if c.Watch.Debounce == "" {
			c.Watch.Debounce = DefaultWatchDebounce
		}
	}

	if c.Events.Enabled && c.Events.Subject == "" {
		c.Events.Subject = "docsdeploy.runs"
	}

	if c.History.Path == "" {
		c.History.Path = DefaultHistoryPath
	}
}

// repoNameFromURL derives a short repository name from its clone URL.
func repoNameFromURL(url string) string {
	trimmed := strings.TrimSuffix(strings.TrimSuffix(url, "/"), ".git")
	// scp-like syntax: git@host:owner/repo
	if i := strings.LastIndex(trimmed, ":"); i >= 0 && !strings.Contains(trimmed[i:], "/") {
		return trimmed[i+1:]
	}
	name := path.Base(trimmed)
	if name == "." || name == "/" {
		return ""
	}
	return name
}
