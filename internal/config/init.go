package config

import (
	"fmt"
	"os"
)

const starterConfig = `# docsdeploy configuration
repository:
  url: git@example.com:team/project.git
  # auth:
  #   type: ssh
  #   key_path: ~/.ssh/id_ed25519

trigger:
  branch: master
  paths:
    - "docs/**"
    - mkdocs.yml

runtime:
  command: python3
  version: "3"

install:
  command: pip
  manifest: docs/requirements.txt

build:
  command: mkdocs
  config_file: mkdocs.yml

publish:
  branch: gh-pages
  force: true

# server:
#   addr: ":8466"
#   secret: change-me

# schedules:
#   - name: nightly
#     every: 24h
`

// Init writes a starter configuration file. Refuses to overwrite an
// existing file unless force is set.
func Init(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file %s already exists (use --force to overwrite)", path)
		}
	}
	if err := os.WriteFile(path, []byte(starterConfig), 0o600); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}
