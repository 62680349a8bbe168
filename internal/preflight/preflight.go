// Package preflight holds the checks that must all pass before a release
// touches the repository.
package preflight

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/menghanl/release-gen/internal/execute"
	"github.com/menghanl/release-gen/internal/relerr"
	"github.com/menghanl/release-gen/internal/version"
)

// Repository is the read-only view of the working copy the checks need.
type Repository interface {
	CurrentBranch(ctx context.Context) (string, error)
	Status(ctx context.Context) ([]string, error)
}

// Authenticator ensures a usable registry credential, prompting if needed.
type Authenticator interface {
	EnsureLogin(ctx context.Context) error
}

// Gate is an external pass/fail check such as the test suite.
type Gate interface {
	Check(ctx context.Context) error
}

// Options controls which gates run.
type Options struct {
	SkipTest bool
	SkipLint bool
}

// Validator runs the checks in a fixed order and stops at the first failure.
// It performs no writes of its own.
type Validator struct {
	repo          Repository
	auth          Authenticator
	tests         Gate
	lint          Gate
	releaseBranch string
	log           *zap.Logger
}

// NewValidator returns a Validator. tests and lint may be nil when no gate is
// configured.
func NewValidator(repo Repository, auth Authenticator, tests, lint Gate, releaseBranch string, log *zap.Logger) *Validator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Validator{repo: repo, auth: auth, tests: tests, lint: lint, releaseBranch: releaseBranch, log: log}
}

// BumpType validates the positional arguments: exactly one, naming a bump type.
func BumpType(args []string) (version.BumpType, error) {
	if len(args) != 1 {
		return "", relerr.UnknownBumpType(strings.Join(args, " "))
	}
	return version.ParseBumpType(args[0])
}

// Validate runs every check and returns the requested bump type.
func (v *Validator) Validate(ctx context.Context, args []string, opts Options) (version.BumpType, error) {
	bump, err := BumpType(args)
	if err != nil {
		return "", err
	}

	branch, err := v.repo.CurrentBranch(ctx)
	if err != nil {
		return "", err
	}
	if branch != v.releaseBranch {
		return "", relerr.NotOnReleaseBranch(branch, v.releaseBranch)
	}

	status, err := v.repo.Status(ctx)
	if err != nil {
		return "", err
	}
	if len(status) > 0 {
		return "", relerr.DirtyWorkingTree(strings.Join(status, "\n"))
	}

	if err := v.auth.EnsureLogin(ctx); err != nil {
		return "", err
	}

	if !opts.SkipTest && v.tests != nil {
		v.log.Info("Running tests")
		if err := v.tests.Check(ctx); err != nil {
			return "", relerr.TestsFailing(err)
		}
	}
	if !opts.SkipLint && v.lint != nil {
		v.log.Info("Running lint")
		if err := v.lint.Check(ctx); err != nil {
			return "", relerr.LintFailing(err)
		}
	}
	return bump, nil
}

// Runner runs an external command.
type Runner interface {
	Run(ctx context.Context, opts execute.Options) (string, error)
}

// CommandGate is a Gate backed by a shell-style command line run in Dir.
type CommandGate struct {
	Command string
	Dir     string
	Runner  Runner
}

// NewCommandGate returns nil for an empty command, disabling the gate.
func NewCommandGate(command, dir string, r Runner) Gate {
	if strings.TrimSpace(command) == "" {
		return nil
	}
	return &CommandGate{Command: command, Dir: dir, Runner: r}
}

// Check runs the command; a non-zero exit is returned with the tool's output.
func (g *CommandGate) Check(ctx context.Context) error {
	name, args, err := execute.Split(g.Command)
	if err != nil {
		return err
	}
	_, err = g.Runner.Run(ctx, execute.Options{Command: name, Args: args, Dir: g.Dir})
	return err
}
