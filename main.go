// release-gen cuts a release of a JavaScript package or workspace from the
// release branch. For example:
//
//	release-gen minor
//
// checks that the working copy is releasable (release branch, clean tree,
// valid registry credential, passing tests and lint), bumps every manifest
// from 1.4.2 to 1.5.0, prepends the changelog section built from the
// conventional commits since tag v1.4.2, commits and tags v1.5.0, pushes, and
// publishes each public package to the registry.
//
// The changelog section lists only feat, fix and perf commits, always in that
// order:
//
//	## 1.5.0
//
//	### Features
//
//	* **api:** add retry budget (1a2b3c4)
//
//	### Bug Fixes
//
//	* correct default timeout (5d6e7f8)
//
// The section is shown for approval before anything is written and can be
// edited in $VISUAL or $EDITOR.
//
// Settings come from .release-gen.yaml at the repository root, RELEASE_GEN_*
// environment variables and flags, in increasing order of precedence.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/menghanl/release-gen/ghclient"
	"github.com/menghanl/release-gen/internal/changelog"
	"github.com/menghanl/release-gen/internal/config"
	"github.com/menghanl/release-gen/internal/execute"
	"github.com/menghanl/release-gen/internal/gitrepo"
	"github.com/menghanl/release-gen/internal/logger"
	"github.com/menghanl/release-gen/internal/manifest"
	"github.com/menghanl/release-gen/internal/preflight"
	"github.com/menghanl/release-gen/internal/prompt"
	"github.com/menghanl/release-gen/internal/registry"
	"github.com/menghanl/release-gen/internal/release"
	"github.com/menghanl/release-gen/internal/relerr"
	"github.com/menghanl/release-gen/notes"
)

type rootFlags struct {
	dir         string
	noChangelog bool
	logLevel    string
	logJSON     bool
}

func newRootCmd() *cobra.Command {
	f := &rootFlags{}
	cmd := &cobra.Command{
		Use:   "release-gen <patch|minor|major>",
		Short: "Bump, tag, push and publish a release",
		Long: `release-gen validates the working copy, bumps every package manifest,
prepends a changelog section generated from conventional commits, commits,
tags and pushes the release, then publishes the packages to the registry.`,
		// The bump type is checked first thing in run, with its own exit code.
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, args, f)
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&f.dir, "dir", ".", "directory inside the repository to release")
	fs.Bool("skip-test", false, "do not run the test command")
	fs.Bool("skip-lint", false, "do not run the lint command")
	fs.BoolVar(&f.noChangelog, "no-changelog", false, "do not generate or write a changelog section")
	fs.String("release-branch", "", "branch releases are cut from (default main)")
	fs.String("remote", "", "remote to push to (default origin)")
	fs.String("changelog-file", "", "changelog path relative to the repository root (default CHANGELOG.md)")
	fs.Bool("rollback", true, "undo local changes when the release fails")
	fs.Bool("github-release", true, "create a GitHub release after pushing")
	fs.StringVar(&f.logLevel, "log-level", "warn", "log level: debug, info, warn or error")
	fs.BoolVar(&f.logJSON, "log-json", false, "write logs as JSON")
	return cmd
}

func run(cmd *cobra.Command, args []string, f *rootFlags) error {
	ctx := cmd.Context()

	// A wrong bump type fails the same way inside or outside a repository.
	if _, err := preflight.BumpType(args); err != nil {
		return err
	}

	log, err := logger.New(f.logLevel, f.logJSON)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	root, err := gitrepo.FindRoot(f.dir)
	if err != nil {
		return err
	}
	cfg, err := config.Load(root, changedFlags(cmd))
	if err != nil {
		return err
	}
	if f.noChangelog {
		cfg.Changelog = false
	}
	log.Debug("Configuration loaded", zap.String("root", root), zap.Any("config", cfg))

	runner := execute.New(log)
	gw, err := gitrepo.Open(root, cfg.Remote, runner, log)
	if err != nil {
		return err
	}
	console := prompt.NewConsole(os.Stdin, os.Stdout, cfg.PromptTimeout, log)

	credPath, err := registry.DefaultCredentialPath()
	if err != nil {
		return err
	}
	auth := registry.NewAuthenticator(
		registry.NewClient(cfg.RegistryURL, nil),
		registry.NewCredentialStore(credPath),
		console,
		prompt.NewBrowser(log),
		registry.AuthOptions{
			RepoRoot:     root,
			PackageName:  rootPackageName(root),
			TokenURL:     cfg.TokenURL,
			AccountEnv:   cfg.AccountEnv,
			Attempts:     cfg.LoginAttempts,
			BrowserPause: cfg.BrowserPause,
		},
		log.Named("registry"))

	validator := preflight.NewValidator(gw, auth,
		preflight.NewCommandGate(cfg.TestCommand, root, runner),
		preflight.NewCommandGate(cfg.LintCommand, root, runner),
		cfg.ReleaseBranch, log.Named("preflight"))

	gh, err := githubClient(ctx, gw, cfg, log)
	if err != nil {
		return err
	}
	var filters notes.Filters
	var hosting release.HostingRelease
	if gh != nil {
		filters.CommitURL = gh.CommitURL
		if cfg.GitHubRelease && os.Getenv(cfg.GitHubTokenEnv) != "" {
			hosting = gh
		}
	}

	sync := manifest.NewSynchronizer(cfg.ManifestConcurrency, log.Named("manifest"))
	tx := release.NewTransaction(gw,
		changelog.NewReviewer(console, prompt.NewEditor(log), log),
		sync,
		release.TransactionOptions{
			ChangelogPath: filepath.Join(root, cfg.ChangelogFile),
			Branch:        cfg.ReleaseBranch,
			Rollback:      cfg.Rollback,
			Filters:       filters,
		},
		log.Named("transaction"))
	publisher := &release.CommandPublisher{
		Command: cfg.PublishCommand,
		Token:   auth.Token,
		Runner:  runner,
		Stream:  os.Stdout,
		Log:     log.Named("publish"),
	}

	o := release.NewOrchestrator(root, validator, sync, tx, publisher, hosting, console, log)
	return o.Run(ctx, args, release.Options{
		Changelog: cfg.Changelog,
		SkipTest:  cfg.SkipTest,
		SkipLint:  cfg.SkipLint,
	})
}

// changedFlags returns only the flags set on the command line, so that flag
// defaults do not shadow the config file and environment.
func changedFlags(cmd *cobra.Command) *pflag.FlagSet {
	out := pflag.NewFlagSet(cmd.Name(), pflag.ContinueOnError)
	cmd.Flags().Visit(func(fl *pflag.Flag) { out.AddFlag(fl) })
	return out
}

// githubClient returns a client for the GitHub repository behind the remote,
// or nil when the remote is not on GitHub.
func githubClient(ctx context.Context, gw *gitrepo.Gateway, cfg *config.Config, log *zap.Logger) (*ghclient.Client, error) {
	url, err := gw.RemoteURL(ctx)
	if err != nil {
		return nil, err
	}
	owner, repo, ok := ghclient.ParseRemote(url)
	if !ok {
		log.Debug("Remote is not on GitHub", zap.String("url", url))
		return nil, nil
	}
	if token := os.Getenv(cfg.GitHubTokenEnv); token != "" {
		return ghclient.NewWithToken(ctx, token, owner, repo), nil
	}
	return ghclient.New(nil, owner, repo), nil
}

func rootPackageName(root string) string {
	data, err := os.ReadFile(filepath.Join(root, manifest.FileName))
	if err != nil {
		return ""
	}
	return manifest.Package{Content: data}.Name()
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	interrupted := ctx.Err() != nil
	stop()

	if err == nil {
		return
	}
	fmt.Fprintln(os.Stderr, color.RedString("Error: %v", err))
	if hint := relerr.Hint(err); hint != "" {
		fmt.Fprintln(os.Stderr, color.YellowString("Hint: %s", hint))
	}
	code := relerr.ExitCode(err)
	if interrupted {
		code = 130
	}
	os.Exit(code)
}
