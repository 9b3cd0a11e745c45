package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"git.home.luguber.info/inful/docsdeploy/internal/config"
	"git.home.luguber.info/inful/docsdeploy/internal/daemon"
	"git.home.luguber.info/inful/docsdeploy/internal/deploy"
	"git.home.luguber.info/inful/docsdeploy/internal/gitops"
	"git.home.luguber.info/inful/docsdeploy/internal/history"
	"git.home.luguber.info/inful/docsdeploy/internal/pipeline"
	"git.home.luguber.info/inful/docsdeploy/internal/trigger"
)

var CLI struct {
	Config  string `short:"c" help:"Configuration file path" default:"docsdeploy.yaml"`
	Verbose bool   `short:"v" help:"Enable verbose logging"`

	Run struct {
		RepoDir string `short:"r" help:"Local checkout to derive the push event from" default:"."`
		Force   bool   `short:"f" help:"Deploy even when no trigger path changed"`
	} `cmd:"" help:"Deploy once, deriving the push event from a local checkout's HEAD"`

	Check struct {
		RepoDir string `short:"r" help:"Local checkout to derive the push event from" default:"."`
	} `cmd:"" help:"Evaluate the trigger filter against HEAD without deploying"`

	Daemon struct {
		WatchRoot string `help:"Working copy root for the docs watcher" default:"."`
	} `cmd:"" help:"Run continuously: webhook server, schedules, and docs watcher"`

	Init struct {
		Force bool `help:"Overwrite existing configuration file"`
	} `cmd:"" help:"Write a starter configuration file"`
}

func main() {
	kctx := kong.Parse(&CLI)

	// Secrets (webhook secret, git tokens) may come from a .env file.
	_ = godotenv.Load()

	logLevel := slog.LevelInfo
	if CLI.Verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	var err error
	switch kctx.Command() {
	case "run":
		err = runOnce()
	case "check":
		err = runCheck()
	case "daemon":
		err = runDaemon()
	case "init":
		err = config.Init(CLI.Config, CLI.Init.Force)
	}
	if err != nil {
		slog.Error("Command failed", "error", err)
		os.Exit(1)
	}
}

// headEvent synthesizes a push event from a local checkout's HEAD commit.
func headEvent(repoDir string, forced bool) (trigger.PushEvent, error) {
	branch, commit, paths, err := gitops.HeadChanges(repoDir)
	if err != nil {
		return trigger.PushEvent{}, err
	}
	return trigger.PushEvent{
		Branch:       branch,
		Commit:       commit,
		ChangedPaths: paths,
		Source:       trigger.SourceCLI,
		Forced:       forced,
	}, nil
}

func runOnce() error {
	cfg, err := config.Load(CLI.Config)
	if err != nil {
		return err
	}

	ev, err := headEvent(CLI.Run.RepoDir, CLI.Run.Force)
	if err != nil {
		return err
	}

	var options []deploy.Option
	hist, err := history.NewSQLiteStore(cfg.History.Path)
	if err != nil {
		slog.Warn("Run history disabled", "error", err)
	} else {
		defer func() { _ = hist.Close() }()
		options = append(options, deploy.WithHistory(hist))
	}

	svc, err := deploy.NewService(cfg, options...)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	report, err := svc.HandleEvent(ctx, ev)
	if err != nil {
		return err
	}
	switch report.Status {
	case pipeline.StatusNotTriggered:
		fmt.Printf("not triggered: %s\n", report.Decision.Reason)
	case pipeline.StatusSucceeded:
		fmt.Printf("deployed %s to %s (%s)\n", report.Commit, cfg.Publish.Branch, report.PublishedCommit)
	}
	return nil
}

func runCheck() error {
	cfg, err := config.Load(CLI.Config)
	if err != nil {
		return err
	}
	filter, err := trigger.NewFilter(cfg.Trigger)
	if err != nil {
		return err
	}

	ev, err := headEvent(CLI.Check.RepoDir, false)
	if err != nil {
		return err
	}

	decision := filter.Evaluate(ev)
	if decision.Triggered {
		fmt.Printf("would deploy: %s\n", decision.Reason)
		if decision.MatchedPath != "" {
			fmt.Printf("matched path: %s\n", decision.MatchedPath)
		}
		return nil
	}
	fmt.Printf("would not deploy: %s\n", decision.Reason)
	return nil
}

func runDaemon() error {
	cfg, err := config.Load(CLI.Config)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	d, err := daemon.New(cfg, CLI.Daemon.WatchRoot)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	return d.Run(ctx)
}
