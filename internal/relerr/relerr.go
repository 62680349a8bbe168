// Package relerr defines the stable error kinds of the release pipeline.
//
// Every kind is a sentinel that callers match with errors.Is. Constructors
// mark a descriptive error with the sentinel so the full context (including
// the output of a failing tool) survives in the message while the kind stays
// matchable.
package relerr

import (
	"github.com/cockroachdb/errors"
)

var (
	// ErrUnknownBumpType is returned when the bump argument is not patch, minor or major.
	ErrUnknownBumpType = errors.New("unknown bump type")
	// ErrNotOnReleaseBranch is returned when HEAD is not the release branch.
	ErrNotOnReleaseBranch = errors.New("not on release branch")
	// ErrDirtyWorkingTree is returned when the working tree has pending changes.
	ErrDirtyWorkingTree = errors.New("dirty working tree")
	// ErrTestsFailing wraps a failing test gate.
	ErrTestsFailing = errors.New("tests failing")
	// ErrLintFailing wraps a failing lint gate.
	ErrLintFailing = errors.New("lint failing")
	// ErrChangelogCancelled is returned when the operator cancels the changelog review.
	ErrChangelogCancelled = errors.New("release cancelled by user")
	// ErrUnauthenticated means the registry rejected (or never saw) a credential.
	ErrUnauthenticated = errors.New("registry: unauthenticated")
	// ErrRegistry covers every other registry failure.
	ErrRegistry = errors.New("registry error")
	// ErrLoginAttemptsExhausted is returned after the bounded login loop gives up.
	ErrLoginAttemptsExhausted = errors.New("registry login attempts exhausted")
	// ErrGit wraps a failing version-control command.
	ErrGit = errors.New("git command failed")
	// ErrPromptTimeout is returned when the operator does not answer in time.
	ErrPromptTimeout = errors.New("prompt timed out")
	// ErrPublish wraps a failing registry publish command.
	ErrPublish = errors.New("publish failed")
)

// UnknownBumpType reports an invalid bump argument.
func UnknownBumpType(arg string) error {
	err := errors.Newf("unknown bump type %q", arg)
	return errors.WithHint(errors.Mark(err, ErrUnknownBumpType), "use one of: patch, minor, major")
}

// NotOnReleaseBranch reports a branch mismatch.
func NotOnReleaseBranch(current, want string) error {
	err := errors.Newf("current branch is %q, releases are cut from %q", current, want)
	return errors.WithHintf(errors.Mark(err, ErrNotOnReleaseBranch), "git checkout %s", want)
}

// DirtyWorkingTree reports uncommitted changes.
func DirtyWorkingTree(summary string) error {
	err := errors.Newf("working tree has uncommitted changes:\n%s", summary)
	return errors.WithHint(errors.Mark(err, ErrDirtyWorkingTree), "commit or stash your changes first")
}

// TestsFailing wraps the test gate failure.
func TestsFailing(cause error) error {
	return errors.Mark(errors.Wrap(cause, "tests failing"), ErrTestsFailing)
}

// LintFailing wraps the lint gate failure.
func LintFailing(cause error) error {
	return errors.Mark(errors.Wrap(cause, "lint failing"), ErrLintFailing)
}

// ChangelogCancelled reports an operator abort during changelog review.
func ChangelogCancelled() error {
	return errors.Mark(errors.New("release cancelled by user"), ErrChangelogCancelled)
}

// Unauthenticated classifies a registry rejection.
func Unauthenticated(cause error) error {
	return errors.Mark(cause, ErrUnauthenticated)
}

// Registry classifies any other registry failure.
func Registry(cause error) error {
	return errors.Mark(cause, ErrRegistry)
}

// LoginAttemptsExhausted reports that every handshake produced an invalid token.
func LoginAttemptsExhausted(attempts int) error {
	err := errors.Newf("registry credential still invalid after %d login attempts", attempts)
	return errors.WithHint(errors.Mark(err, ErrLoginAttemptsExhausted),
		"check the token scope (read and write on packages) and try again")
}

// Git marks a failing git invocation. The runner already carries the
// command output in cause.
func Git(cause error) error {
	return errors.Mark(cause, ErrGit)
}

// PromptTimeout reports an unanswered prompt.
func PromptTimeout(cause error) error {
	return errors.Mark(errors.Wrap(cause, "no answer from operator"), ErrPromptTimeout)
}

// Publish wraps a failing publish for one package.
func Publish(pkg string, cause error) error {
	return errors.Mark(errors.Wrapf(cause, "publish %s", pkg), ErrPublish)
}

// ExitCode maps an error to the process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrChangelogCancelled), errors.Is(err, ErrPromptTimeout):
		return 130
	case errors.Is(err, ErrUnknownBumpType):
		return 2
	default:
		return 1
	}
}

// Hint returns the operator-facing remediation attached to err, if any.
func Hint(err error) string {
	return errors.FlattenHints(err)
}
