package gitops

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	git "github.com/go-git/go-git/v5"
	gitcfg "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing/object"

	"git.home.luguber.info/inful/docsdeploy/internal/config"
	"git.home.luguber.info/inful/docsdeploy/internal/logfields"
)

// PublishOptions parametrize the terminal force-push of a generated site.
type PublishOptions struct {
	RemoteURL      string
	Branch         string
	Force          bool
	CommitterName  string
	CommitterEmail string
	Message        string
	Auth           *config.AuthConfig
}

// PublishSite turns siteDir into a single-commit repository and pushes it
// to the target branch. With Force set, the remote branch content is
// unconditionally replaced; without it, a non-fast-forward push fails the
// run. Returns the hash of the published commit.
//
// Each run publishes a fresh root commit; the pages branch carries no
// history.
func PublishSite(ctx context.Context, siteDir string, opts PublishOptions) (string, error) {
	if opts.RemoteURL == "" {
		return "", fmt.Errorf("publish requires a remote URL")
	}
	if opts.Branch == "" {
		return "", fmt.Errorf("publish requires a target branch")
	}

	repository, err := git.PlainInit(siteDir, false)
	if err != nil {
		return "", fmt.Errorf("init site repository: %w", err)
	}

	wt, err := repository.Worktree()
	if err != nil {
		return "", fmt.Errorf("open site worktree: %w", err)
	}
	if err := wt.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return "", fmt.Errorf("stage site files: %w", err)
	}

	message := opts.Message
	if message == "" {
		message = "Deploy generated documentation site"
	}
	sig := &object.Signature{Name: opts.CommitterName, Email: opts.CommitterEmail, When: time.Now()}
	commit, err := wt.Commit(message, &git.CommitOptions{Author: sig, Committer: sig})
	if err != nil {
		return "", fmt.Errorf("commit site: %w", err)
	}

	if _, err := repository.CreateRemote(&gitcfg.RemoteConfig{
		Name: "origin",
		URLs: []string{opts.RemoteURL},
	}); err != nil {
		return "", fmt.Errorf("configure publish remote: %w", err)
	}

	head, err := repository.Head()
	if err != nil {
		return "", fmt.Errorf("resolve site HEAD: %w", err)
	}
	refspec := fmt.Sprintf("%s:refs/heads/%s", head.Name(), opts.Branch)
	if opts.Force {
		refspec = "+" + refspec
	}

	pushOptions := &git.PushOptions{
		RemoteName: "origin",
		RefSpecs:   []gitcfg.RefSpec{gitcfg.RefSpec(refspec)},
	}
	if opts.Auth != nil {
		auth, err := createAuth(opts.Auth)
		if err != nil {
			return "", fmt.Errorf("setup publish authentication: %w", err)
		}
		pushOptions.Auth = auth
	}

	if err := repository.PushContext(ctx, pushOptions); err != nil {
		return "", classifyError("push", opts.RemoteURL, err)
	}

	slog.Info("Site published",
		logfields.URL(opts.RemoteURL),
		logfields.Branch(opts.Branch),
		logfields.Commit(shortHash(commit.String())),
		slog.Bool("force", opts.Force))
	return commit.String(), nil
}
