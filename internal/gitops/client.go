// Package gitops wraps the go-git operations the deploy pipeline needs:
// checking out the triggering commit into an ephemeral workspace and
// force-publishing the generated site to the pages branch.
package gitops

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"git.home.luguber.info/inful/docsdeploy/internal/config"
	"git.home.luguber.info/inful/docsdeploy/internal/logfields"
)

// Client handles git operations for one configured repository.
type Client struct {
	repo config.RepositoryConfig
}

// NewClient creates a git client for the given repository configuration.
func NewClient(repo config.RepositoryConfig) *Client { return &Client{repo: repo} }

// Checkout clones the repository at the given branch into dir and, when a
// commit is specified, moves the worktree to that commit. It returns the
// hash of the checked-out commit. Any existing content at dir is removed
// first; the checkout is ephemeral by contract.
func (c *Client) Checkout(ctx context.Context, dir, branch, commit string) (string, error) {
	if err := os.RemoveAll(dir); err != nil {
		return "", fmt.Errorf("clean checkout dir: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(dir), 0o750); err != nil {
		return "", fmt.Errorf("create workspace parent: %w", err)
	}

	slog.Debug("Cloning repository",
		logfields.URL(c.repo.URL),
		logfields.Branch(branch),
		logfields.Path(dir))

	cloneOptions := &git.CloneOptions{URL: c.repo.URL}
	if branch != "" {
		cloneOptions.ReferenceName = plumbing.ReferenceName("refs/heads/" + branch)
		cloneOptions.SingleBranch = true
	}
	if c.repo.Auth != nil {
		auth, err := createAuth(c.repo.Auth)
		if err != nil {
			return "", fmt.Errorf("setup authentication: %w", err)
		}
		cloneOptions.Auth = auth
	}

	repository, err := git.PlainCloneContext(ctx, dir, false, cloneOptions)
	if err != nil {
		return "", classifyError("clone", c.repo.URL, err)
	}

	if commit != "" {
		wt, err := repository.Worktree()
		if err != nil {
			return "", fmt.Errorf("open worktree: %w", err)
		}
		hash := plumbing.NewHash(commit)
		if err := wt.Checkout(&git.CheckoutOptions{Hash: hash}); err != nil {
			return "", fmt.Errorf("checkout commit %s: %w", commit, err)
		}
		slog.Info("Repository checked out", logfields.Name(c.repo.Name), logfields.Commit(shortHash(commit)), logfields.Path(dir))
		return commit, nil
	}

	ref, err := repository.Head()
	if err != nil {
		return "", fmt.Errorf("resolve HEAD: %w", err)
	}
	head := ref.Hash().String()
	slog.Info("Repository checked out", logfields.Name(c.repo.Name), logfields.Commit(shortHash(head)), logfields.Path(dir))
	return head, nil
}

// HeadChanges inspects a local repository and returns its current branch,
// HEAD commit, and the paths changed by the HEAD commit relative to its
// first parent. A root commit reports every file in its tree. Used by the
// CLI to synthesize a push event from a working checkout.
func HeadChanges(repoPath string) (branch, commit string, paths []string, err error) {
	repository, err := git.PlainOpen(repoPath)
	if err != nil {
		return "", "", nil, fmt.Errorf("open repository %s: %w", repoPath, err)
	}

	ref, err := repository.Head()
	if err != nil {
		return "", "", nil, fmt.Errorf("resolve HEAD: %w", err)
	}
	if ref.Name().IsBranch() {
		branch = ref.Name().Short()
	}
	commit = ref.Hash().String()

	headCommit, err := repository.CommitObject(ref.Hash())
	if err != nil {
		return "", "", nil, fmt.Errorf("read HEAD commit: %w", err)
	}
	headTree, err := headCommit.Tree()
	if err != nil {
		return "", "", nil, fmt.Errorf("read HEAD tree: %w", err)
	}

	if headCommit.NumParents() == 0 {
		err = headTree.Files().ForEach(func(f *object.File) error {
			paths = append(paths, f.Name)
			return nil
		})
		if err != nil {
			return "", "", nil, fmt.Errorf("walk root tree: %w", err)
		}
		return branch, commit, paths, nil
	}

	parent, err := headCommit.Parent(0)
	if err != nil {
		return "", "", nil, fmt.Errorf("read parent commit: %w", err)
	}
	parentTree, err := parent.Tree()
	if err != nil {
		return "", "", nil, fmt.Errorf("read parent tree: %w", err)
	}

	changes, err := parentTree.Diff(headTree)
	if err != nil {
		return "", "", nil, fmt.Errorf("diff trees: %w", err)
	}
	seen := map[string]bool{}
	for _, ch := range changes {
		for _, name := range []string{ch.From.Name, ch.To.Name} {
			if name != "" && !seen[name] {
				seen[name] = true
				paths = append(paths, name)
			}
		}
	}
	return branch, commit, paths, nil
}

func shortHash(h string) string {
	if len(h) > 8 {
		return h[:8]
	}
	return h
}
