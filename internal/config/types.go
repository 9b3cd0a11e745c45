package config

// Config is the root configuration for a docsdeploy installation. One
// config file describes one deploy pipeline: a trigger filter plus the
// fixed checkout → provision → cache → install → build → publish flow.
type Config struct {
	Repository RepositoryConfig `yaml:"repository"`
	Trigger    TriggerConfig    `yaml:"trigger"`
	Runtime    RuntimeConfig    `yaml:"runtime"`
	Cache      CacheConfig      `yaml:"cache"`
	Install    InstallConfig    `yaml:"install"`
	Build      BuildConfig      `yaml:"build"`
	Publish    PublishConfig    `yaml:"publish"`
	Workspace  WorkspaceConfig  `yaml:"workspace,omitempty"`
	Server     ServerConfig     `yaml:"server,omitempty"`
	Schedules  []ScheduleConfig `yaml:"schedules,omitempty"`
	Watch      WatchConfig      `yaml:"watch,omitempty"`
	Events     EventsConfig     `yaml:"events,omitempty"`
	History    HistoryConfig    `yaml:"history,omitempty"`
}

// RepositoryConfig identifies the source repository to deploy from.
type RepositoryConfig struct {
	URL  string      `yaml:"url"`
	Name string      `yaml:"name,omitempty"`
	Auth *AuthConfig `yaml:"auth,omitempty"`
}

// AuthType enumerates supported authentication methods (stringly for YAML compatibility)
type AuthType string

const (
	AuthTypeNone  AuthType = "none"
	AuthTypeSSH   AuthType = "ssh"
	AuthTypeToken AuthType = "token"
	AuthTypeBasic AuthType = "basic"
)

// AuthConfig represents authentication configuration
type AuthConfig struct {
	Type     AuthType `yaml:"type"` // ssh|token|basic|none
	Username string   `yaml:"username,omitempty"`
	Password string   `yaml:"password,omitempty"`
	Token    string   `yaml:"token,omitempty"`
	KeyPath  string   `yaml:"key_path,omitempty"`
}

// IsZero reports whether no auth method is specified.
func (a *AuthConfig) IsZero() bool { return a == nil || a.Type == "" || a.Type == AuthTypeNone }

// TriggerConfig is the push-event gate: the branch that must be pushed
// and the path globs at least one changed file must match.
type TriggerConfig struct {
	Branch string   `yaml:"branch"`
	Paths  []string `yaml:"paths"`
}

// RuntimeConfig pins the interpreter the installer and generator run under.
// Version is matched as a prefix against `<command> --version` output, so
// "3" accepts any 3.x while "3.10" pins the minor release.
type RuntimeConfig struct {
	Command string `yaml:"command"`
	Version string `yaml:"version"`
}

// CacheConfig controls the dependency cache. The key is derived from a
// content hash of Manifest plus the OS identifier; RestorePrefix is the
// fallback prefix consulted when the exact key misses.
type CacheConfig struct {
	Dir           string `yaml:"dir"`
	Manifest      string `yaml:"manifest"`
	RestorePrefix string `yaml:"restore_prefix,omitempty"`
	TargetDir     string `yaml:"target_dir,omitempty"` // directory restored/saved, e.g. the pip cache
}

// InstallConfig is the package-install invocation. Args may reference the
// manifest via the {manifest} placeholder. CacheEnv names the environment
// variable the installer reads its cache directory from; the pipeline
// points it at the restored cache.
type InstallConfig struct {
	Command  string   `yaml:"command"`
	Args     []string `yaml:"args,omitempty"`
	Manifest string   `yaml:"manifest"`
	CacheEnv string   `yaml:"cache_env,omitempty"`
}

// BuildConfig is the site-generator invocation.
type BuildConfig struct {
	Command    string `yaml:"command"`
	ConfigFile string `yaml:"config_file"`
	OutputDir  string `yaml:"output_dir,omitempty"`
	DocsDir    string `yaml:"docs_dir,omitempty"`
	Verbose    bool   `yaml:"verbose,omitempty"`
	DocCheck   bool   `yaml:"doc_check,omitempty"`  // pre-build markdown sanity check (warnings only)
	LinkSweep  bool   `yaml:"link_sweep,omitempty"` // post-build HTML link check (warnings only)
}

// PublishConfig describes the terminal force-push of the generated site.
type PublishConfig struct {
	Branch         string `yaml:"branch"`
	RemoteURL      string `yaml:"remote_url,omitempty"` // defaults to repository.url
	Force          bool   `yaml:"force"`
	CommitterName  string `yaml:"committer_name,omitempty"`
	CommitterEmail string `yaml:"committer_email,omitempty"`
}

// WorkspaceConfig controls where ephemeral per-run checkouts live.
type WorkspaceConfig struct {
	Dir string `yaml:"dir,omitempty"`
}

// ServerConfig is the webhook/metrics HTTP surface for daemon mode.
type ServerConfig struct {
	Addr        string `yaml:"addr,omitempty"`
	WebhookPath string `yaml:"webhook_path,omitempty"`
	Secret      string `yaml:"secret,omitempty"` // HMAC secret for push payload signatures
}

// ScheduleConfig declares a periodic forced deploy. Every is a Go duration
// string ("6h", "30m"); parsed during validation.
type ScheduleConfig struct {
	Name  string `yaml:"name,omitempty"`
	Every string `yaml:"every"`
}

// WatchConfig enables local docs-tree watching (daemon mode only).
// Debounce is a Go duration string.
type WatchConfig struct {
	Enabled  bool   `yaml:"enabled,omitempty"`
	Dir      string `yaml:"dir,omitempty"`
	Debounce string `yaml:"debounce,omitempty"`
}

// EventsConfig enables publishing run lifecycle events to NATS.
type EventsConfig struct {
	Enabled bool   `yaml:"enabled,omitempty"`
	URL     string `yaml:"url,omitempty"`
	Subject string `yaml:"subject,omitempty"`
}

// HistoryConfig locates the run history database.
type HistoryConfig struct {
	Path string `yaml:"path,omitempty"`
}
