package gitops

import (
	"fmt"
	"os"

	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/plumbing/transport/ssh"

	"git.home.luguber.info/inful/docsdeploy/internal/config"
)

// createAuth maps an AuthConfig onto a go-git transport.AuthMethod.
// A nil return with nil error means anonymous access.
func createAuth(authCfg *config.AuthConfig) (transport.AuthMethod, error) {
	if authCfg.IsZero() {
		return nil, nil
	}

	switch authCfg.Type {
	case config.AuthTypeToken:
		if authCfg.Token == "" {
			return nil, fmt.Errorf("token auth requires a token")
		}
		// Git-over-HTTP token auth is basic auth with the token as password.
		username := authCfg.Username
		if username == "" {
			username = "git"
		}
		return &http.BasicAuth{Username: username, Password: authCfg.Token}, nil

	case config.AuthTypeBasic:
		if authCfg.Username == "" || authCfg.Password == "" {
			return nil, fmt.Errorf("basic auth requires username and password")
		}
		return &http.BasicAuth{Username: authCfg.Username, Password: authCfg.Password}, nil

	case config.AuthTypeSSH:
		if authCfg.KeyPath == "" {
			return nil, fmt.Errorf("ssh auth requires key_path")
		}
		if _, err := os.Stat(authCfg.KeyPath); err != nil {
			return nil, fmt.Errorf("ssh key %s: %w", authCfg.KeyPath, err)
		}
		keys, err := ssh.NewPublicKeysFromFile("git", authCfg.KeyPath, authCfg.Password)
		if err != nil {
			return nil, fmt.Errorf("load ssh key %s: %w", authCfg.KeyPath, err)
		}
		return keys, nil

	default:
		return nil, fmt.Errorf("unsupported auth type %q", authCfg.Type)
	}
}
