package release

import (
	"context"
	"os"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/menghanl/release-gen/internal/fsutil"
	"github.com/menghanl/release-gen/internal/manifest"
	"github.com/menghanl/release-gen/notes"
)

// Repository is the working copy as the transaction sees it.
type Repository interface {
	notes.History
	Head(ctx context.Context) (string, error)
	CommitAll(ctx context.Context, message string) error
	CreateTag(ctx context.Context, name string) error
	DeleteTag(ctx context.Context, name string) error
	Push(ctx context.Context, branch, tag string) error
	ResetHard(ctx context.Context, rev string) error
}

// Reviewer asks the operator to approve the changelog section.
type Reviewer interface {
	ConfirmOrEdit(ctx context.Context, text string) (string, error)
}

// Bumper rewrites the version of every manifest.
type Bumper interface {
	BumpAll(ctx context.Context, pkgs []manifest.Package, version string) error
}

// TransactionOptions configures the repository update.
type TransactionOptions struct {
	// ChangelogPath is the absolute path of the changelog file.
	ChangelogPath string
	// Branch receives the release commit on the remote.
	Branch string
	// Rollback undoes local changes when a step fails.
	Rollback bool
	Filters  notes.Filters
}

// Transaction writes the changelog, bumps manifests, then commits, tags and
// pushes, in that order.
type Transaction struct {
	repo     Repository
	reviewer Reviewer
	bumper   Bumper
	opts     TransactionOptions
	log      *zap.Logger
}

// NewTransaction returns a Transaction.
func NewTransaction(repo Repository, reviewer Reviewer, bumper Bumper, opts TransactionOptions, log *zap.Logger) *Transaction {
	if log == nil {
		log = zap.NewNop()
	}
	return &Transaction{repo: repo, reviewer: reviewer, bumper: bumper, opts: opts, log: log}
}

// Run applies d to the repository and returns the approved changelog section,
// or "" when the changelog is disabled. The section is generated and reviewed
// before the first write, so a cancelled review leaves the tree untouched.
//
// When rollback is enabled and a step fails, the tag is deleted and the tree
// is returned to its recorded state; the rollback error, if any, is attached
// to the returned error.
func (t *Transaction) Run(ctx context.Context, d *Data) (section string, err error) {
	if d.ChangelogEnabled() {
		generated, err := notes.GenerateSection(ctx, t.repo, d.CurrentVersion(), d.NewVersion(), t.opts.Filters)
		if err != nil {
			return "", err
		}
		section, err = t.reviewer.ConfirmOrEdit(ctx, generated)
		if err != nil {
			return "", err
		}
	}

	undo, err := t.record(ctx, d)
	if err != nil {
		return "", err
	}
	defer func() {
		if err == nil || !t.opts.Rollback {
			return
		}
		t.log.Warn("Release failed, rolling back", zap.Error(err))
		// The caller's ctx may be what failed; undo must still run.
		if rerr := undo.revert(context.WithoutCancel(ctx)); rerr != nil {
			err = errors.WithSecondaryError(err, errors.Wrap(rerr, "rollback"))
		}
	}()

	if d.ChangelogEnabled() {
		if err := notes.Prepend(t.opts.ChangelogPath, section); err != nil {
			return "", errors.Wrap(err, "update changelog")
		}
		t.log.Info("Changelog updated", zap.String("path", t.opts.ChangelogPath))
	}

	if err := t.bumper.BumpAll(ctx, d.Packages(), d.NewVersion()); err != nil {
		return "", errors.Wrap(err, "bump manifests")
	}
	t.log.Info("Manifests bumped", zap.String("version", d.NewVersion()), zap.Int("count", len(d.Packages())))

	// Staging may succeed even when the commit fails.
	undo.staged = true
	if err := t.repo.CommitAll(ctx, d.Tag()); err != nil {
		return "", errors.Wrap(err, "commit release")
	}
	if err := t.repo.CreateTag(ctx, d.Tag()); err != nil {
		return "", errors.Wrap(err, "tag release")
	}
	undo.tag = d.Tag()
	if err := t.repo.Push(ctx, t.opts.Branch, d.Tag()); err != nil {
		return "", errors.Wrap(err, "push release")
	}
	t.log.Info("Release pushed", zap.String("tag", d.Tag()), zap.String("branch", t.opts.Branch))
	return section, nil
}

type fileSnapshot struct {
	path    string
	content []byte
	// existed is false for files the release creates.
	existed bool
}

// undoLog records what the transaction needs to put the working copy back.
type undoLog struct {
	repo   Repository
	log    *zap.Logger
	head   string
	files  []fileSnapshot
	staged bool
	tag    string
}

func (t *Transaction) record(ctx context.Context, d *Data) (*undoLog, error) {
	u := &undoLog{repo: t.repo, log: t.log}
	head, err := t.repo.Head(ctx)
	if err != nil {
		return nil, err
	}
	u.head = head

	if d.ChangelogEnabled() {
		data, err := os.ReadFile(t.opts.ChangelogPath)
		switch {
		case err == nil:
			u.files = append(u.files, fileSnapshot{path: t.opts.ChangelogPath, content: data, existed: true})
		case errors.Is(err, os.ErrNotExist):
			u.files = append(u.files, fileSnapshot{path: t.opts.ChangelogPath})
		default:
			return nil, errors.Wrap(err, "read changelog")
		}
	}
	for _, p := range d.Packages() {
		u.files = append(u.files, fileSnapshot{path: p.Path, content: p.Content, existed: true})
	}
	return u, nil
}

func (u *undoLog) revert(ctx context.Context) error {
	var errs error
	if u.tag != "" {
		if err := u.repo.DeleteTag(ctx, u.tag); err != nil {
			errs = errors.CombineErrors(errs, err)
		}
	}
	if u.staged {
		if err := u.repo.ResetHard(ctx, u.head); err != nil {
			errs = errors.CombineErrors(errs, err)
		}
		u.log.Info("Reset to previous HEAD", zap.String("head", u.head))
	}

	// A hard reset restores tracked files but leaves files the release
	// created untracked when the commit never happened.
	for _, f := range u.files {
		var err error
		switch {
		case f.existed && u.staged:
			continue
		case f.existed:
			err = fsutil.WriteFileAtomic(f.path, f.content, 0o644)
		default:
			err = os.Remove(f.path)
			if errors.Is(err, os.ErrNotExist) {
				err = nil
			}
		}
		if err != nil {
			errs = errors.CombineErrors(errs, errors.Wrapf(err, "restore %s", f.path))
		}
	}
	u.log.Info("Restored files", zap.Int("count", len(u.files)))
	return errs
}
