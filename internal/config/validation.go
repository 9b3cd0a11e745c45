package config

import (
	"fmt"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

// Validate checks invariants after defaults have been applied. It returns
// the first problem found; callers surface it and abort.
func (c *Config) Validate() error {
	if c.Repository.URL == "" {
		return fmt.Errorf("repository.url is required")
	}
	if c.Trigger.Branch == "" {
		return fmt.Errorf("trigger.branch is required")
	}
	for _, pattern := range c.Trigger.Paths {
		if !doublestar.ValidatePattern(pattern) {
			return fmt.Errorf("trigger.paths: invalid glob pattern %q", pattern)
		}
	}

	if c.Install.Manifest == "" {
		return fmt.Errorf("install.manifest is required")
	}
	if c.Cache.Manifest == "" {
		return fmt.Errorf("cache.manifest is required")
	}
	if c.Build.ConfigFile == "" {
		return fmt.Errorf("build.config_file is required")
	}
	if c.Publish.Branch == c.Trigger.Branch {
		return fmt.Errorf("publish.branch must differ from trigger.branch (%q)", c.Trigger.Branch)
	}

	if c.Repository.Auth != nil && !c.Repository.Auth.IsZero() {
		switch c.Repository.Auth.Type {
		case AuthTypeSSH:
			if c.Repository.Auth.KeyPath == "" {
				return fmt.Errorf("repository.auth: ssh auth requires key_path")
			}
		case AuthTypeToken:
			if c.Repository.Auth.Token == "" {
				return fmt.Errorf("repository.auth: token auth requires token")
			}
		case AuthTypeBasic:
			if c.Repository.Auth.Username == "" || c.Repository.Auth.Password == "" {
				return fmt.Errorf("repository.auth: basic auth requires username and password")
			}
		default:
			return fmt.Errorf("repository.auth: unknown type %q", c.Repository.Auth.Type)
		}
	}

	for i, s := range c.Schedules {
		if _, err := time.ParseDuration(s.Every); err != nil {
			return fmt.Errorf("schedules[%d].every: %w", i, err)
		}
	}
	if c.Watch.Enabled {
		if _, err := time.ParseDuration(c.Watch.Debounce); err != nil {
			return fmt.Errorf("watch.debounce: %w", err)
		}
	}
	if c.Events.Enabled && c.Events.URL == "" {
		return fmt.Errorf("events.url is required when events are enabled")
	}
	return nil
}

// ScheduleInterval returns the parsed interval for a schedule entry.
// Validate has already rejected unparsable values.
func (s ScheduleConfig) ScheduleInterval() time.Duration {
	d, _ := time.ParseDuration(s.Every)
	return d
}

// DebounceInterval returns the parsed watch debounce window.
func (w WatchConfig) DebounceInterval() time.Duration {
	d, _ := time.ParseDuration(w.Debounce)
	return d
}
