package deploy

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"git.home.luguber.info/inful/docsdeploy/internal/cache"
	"git.home.luguber.info/inful/docsdeploy/internal/config"
	"git.home.luguber.info/inful/docsdeploy/internal/gitops"
	"git.home.luguber.info/inful/docsdeploy/internal/installer"
	"git.home.luguber.info/inful/docsdeploy/internal/logfields"
	"git.home.luguber.info/inful/docsdeploy/internal/pipeline"
	rt "git.home.luguber.info/inful/docsdeploy/internal/runtime"
	"git.home.luguber.info/inful/docsdeploy/internal/site"
)

// checkoutStep clones the repository at the triggering commit into the
// run workspace.
type checkoutStep struct {
	client *gitops.Client
	branch string
}

func (s *checkoutStep) Name() pipeline.StepName { return pipeline.StepCheckout }

func (s *checkoutStep) Run(ctx context.Context, st *pipeline.RunState) error {
	commit, err := s.client.Checkout(ctx, st.CheckoutDir, s.branch, st.Event.Commit)
	if err != nil {
		return err
	}
	st.Commit = commit
	return nil
}

// provisionStep verifies the pinned interpreter is available.
type provisionStep struct {
	prov *rt.Provisioner
}

func (s *provisionStep) Name() pipeline.StepName { return pipeline.StepProvision }

func (s *provisionStep) Run(ctx context.Context, st *pipeline.RunState) error {
	_, err := s.prov.Provision(ctx)
	return err
}

// cacheStep computes the manifest-derived cache key and restores the best
// matching entry. A total miss is not a failure.
type cacheStep struct {
	store *cache.Store
	cfg   config.CacheConfig
	label string
}

func (s *cacheStep) Name() pipeline.StepName { return pipeline.StepCache }

func (s *cacheStep) Run(ctx context.Context, st *pipeline.RunState) error {
	manifest := filepath.Join(st.CheckoutDir, filepath.FromSlash(s.cfg.Manifest))
	key, err := cache.ComputeKey(cache.OSID(), s.label, manifest)
	if err != nil {
		return fmt.Errorf("compute cache key: %w", err)
	}
	st.CacheKey = key

	prefix := s.cfg.RestorePrefix
	if prefix == "" {
		prefix = cache.RestorePrefix(cache.OSID(), s.label)
	}

	st.CacheDir = s.cfg.TargetDir
	if st.CacheDir == "" {
		st.CacheDir = filepath.Join(filepath.Dir(st.CheckoutDir), "depcache")
	}

	outcome, err := s.store.Restore(ctx, key, prefix, st.CacheDir)
	if err != nil {
		return err
	}
	st.CacheRestored = outcome.Hit
	st.CacheExact = outcome.Exact
	return nil
}

// installStep runs the package installer, then seeds the cache under the
// exact key when the restore was not an exact hit.
type installStep struct {
	inst  *installer.Installer
	store *cache.Store
	env   string // cache directory environment variable
}

func (s *installStep) Name() pipeline.StepName { return pipeline.StepInstall }

func (s *installStep) Run(ctx context.Context, st *pipeline.RunState) error {
	var extraEnv []string
	if s.env != "" && st.CacheDir != "" {
		extraEnv = []string{s.env + "=" + st.CacheDir}
	}
	if err := s.inst.Run(ctx, st.CheckoutDir, extraEnv); err != nil {
		return err
	}

	if !st.CacheExact && st.CacheKey != "" && st.CacheDir != "" {
		if err := s.store.Save(ctx, st.CacheKey, st.CacheDir); err != nil {
			// Seeding is a side effect; its failure must not fail the run.
			slog.Warn("Cache save failed", logfields.CacheKey(st.CacheKey), logfields.Error(err))
		}
	}
	return nil
}

// buildStep runs the site generator, with the optional markdown check
// before and HTML link sweep after. Sweep findings are warnings only.
type buildStep struct {
	builder *site.Builder
	cfg     config.BuildConfig
}

func (s *buildStep) Name() pipeline.StepName { return pipeline.StepBuild }

func (s *buildStep) Run(ctx context.Context, st *pipeline.RunState) error {
	if s.cfg.DocCheck {
		docsDir := filepath.Join(st.CheckoutDir, filepath.FromSlash(s.cfg.DocsDir))
		findings, err := site.CheckDocs(docsDir)
		if err != nil {
			slog.Warn("Doc check skipped", logfields.Error(err))
		}
		for _, f := range findings {
			slog.Warn("Doc check finding", logfields.RunID(st.RunID), slog.String("finding", f.String()))
		}
	}

	out, err := s.builder.Run(ctx, st.CheckoutDir)
	if err != nil {
		return err
	}
	st.SiteDir = out

	if s.cfg.LinkSweep {
		findings, err := site.SweepLinks(out)
		if err != nil {
			slog.Warn("Link sweep skipped", logfields.Error(err))
		}
		for _, f := range findings {
			slog.Warn("Link sweep finding", logfields.RunID(st.RunID), slog.String("finding", f.String()))
		}
	}
	return nil
}

// publishStep force-pushes the generated site to the pages branch.
type publishStep struct {
	cfg  config.PublishConfig
	auth *config.AuthConfig
}

func (s *publishStep) Name() pipeline.StepName { return pipeline.StepPublish }

func (s *publishStep) Run(ctx context.Context, st *pipeline.RunState) error {
	commit, err := gitops.PublishSite(ctx, st.SiteDir, gitops.PublishOptions{
		RemoteURL:      s.cfg.RemoteURL,
		Branch:         s.cfg.Branch,
		Force:          s.cfg.Force,
		CommitterName:  s.cfg.CommitterName,
		CommitterEmail: s.cfg.CommitterEmail,
		Message:        fmt.Sprintf("Deploy docs site for %s", st.Commit),
		Auth:           s.auth,
	})
	if err != nil {
		return err
	}
	st.PublishedBranch = s.cfg.Branch
	st.PublishedCommit = commit
	return nil
}
