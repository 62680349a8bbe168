// Package gitrepo is the release pipeline's view of the local working copy.
//
// Read-side queries (branch, tags, history) go through go-git. Mutations
// (commit, tag, push, reset) shell out to the git binary so they honour the
// operator's identity, signing configuration and remote credentials.
package gitrepo

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"go.uber.org/zap"

	"github.com/menghanl/release-gen/internal/execute"
	"github.com/menghanl/release-gen/internal/relerr"
)

// Commit is one entry of the version-control log.
type Commit struct {
	Hash    string
	Subject string
}

// CommandRunner runs an external command and returns its combined output.
type CommandRunner interface {
	Run(ctx context.Context, opts execute.Options) (string, error)
}

// Gateway issues version-control commands against one working copy.
type Gateway struct {
	root   string
	remote string
	repo   *git.Repository
	run    CommandRunner
	log    *zap.Logger
}

// Open locates the repository containing dir (searching parent directories)
// and returns a Gateway bound to its root and the named remote.
func Open(dir, remote string, run CommandRunner, log *zap.Logger) (*Gateway, error) {
	if log == nil {
		log = zap.NewNop()
	}
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, errors.Wrapf(err, "open git repository at %s", dir)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return nil, errors.Wrap(err, "repository has no working tree")
	}
	return &Gateway{
		root:   wt.Filesystem.Root(),
		remote: remote,
		repo:   repo,
		run:    run,
		log:    log,
	}, nil
}

// FindRoot returns the root of the working copy containing dir.
func FindRoot(dir string) (string, error) {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return "", errors.Wrapf(err, "%s is not inside a git repository", dir)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return "", errors.Wrap(err, "repository has no working tree")
	}
	return wt.Filesystem.Root(), nil
}

// Root returns the absolute path of the working copy.
func (g *Gateway) Root() string { return g.root }

// CurrentBranch returns the short name of the checked-out branch, or "HEAD"
// when detached.
func (g *Gateway) CurrentBranch(ctx context.Context) (string, error) {
	ref, err := g.repo.Head()
	if err != nil {
		return "", errors.Wrap(err, "resolve HEAD")
	}
	if !ref.Name().IsBranch() {
		return "HEAD", nil
	}
	return ref.Name().Short(), nil
}

// Head returns the full hash HEAD points at.
func (g *Gateway) Head(ctx context.Context) (string, error) {
	ref, err := g.repo.Head()
	if err != nil {
		return "", errors.Wrap(err, "resolve HEAD")
	}
	return ref.Hash().String(), nil
}

// Status returns the porcelain status lines; an empty slice means a clean tree.
func (g *Gateway) Status(ctx context.Context) ([]string, error) {
	out, err := g.git(ctx, "status", "--porcelain")
	if err != nil {
		return nil, err
	}
	if out == "" {
		return []string{}, nil
	}
	return strings.Split(out, "\n"), nil
}

// TagExists reports whether a tag with the given name exists locally.
func (g *Gateway) TagExists(ctx context.Context, name string) (bool, error) {
	_, err := g.repo.Reference(plumbing.NewTagReferenceName(name), true)
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "look up tag %s", name)
	}
	return true, nil
}

// CommitsSince returns the commits reachable from HEAD but not from the tag
// from, newest first. An empty from walks the entire history.
func (g *Gateway) CommitsSince(ctx context.Context, from string) ([]Commit, error) {
	head, err := g.repo.Head()
	if err != nil {
		return nil, errors.Wrap(err, "resolve HEAD")
	}

	exclude := map[plumbing.Hash]struct{}{}
	if from != "" {
		start, err := g.tagCommit(from)
		if err != nil {
			return nil, err
		}
		iter, err := g.repo.Log(&git.LogOptions{From: start})
		if err != nil {
			return nil, errors.Wrapf(err, "walk history of %s", from)
		}
		err = iter.ForEach(func(c *object.Commit) error {
			exclude[c.Hash] = struct{}{}
			return nil
		})
		if err != nil {
			return nil, errors.Wrapf(err, "walk history of %s", from)
		}
	}

	iter, err := g.repo.Log(&git.LogOptions{From: head.Hash()})
	if err != nil {
		return nil, errors.Wrap(err, "walk history of HEAD")
	}
	var commits []Commit
	err = iter.ForEach(func(c *object.Commit) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, seen := exclude[c.Hash]; seen {
			return nil
		}
		commits = append(commits, Commit{Hash: c.Hash.String(), Subject: subject(c.Message)})
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "walk history of HEAD")
	}

	g.log.Debug("Collected commits",
		zap.String("from", from),
		zap.Int("count", len(commits)))
	return commits, nil
}

// tagCommit resolves a lightweight or annotated tag to its commit.
func (g *Gateway) tagCommit(name string) (plumbing.Hash, error) {
	ref, err := g.repo.Tag(name)
	if err != nil {
		return plumbing.ZeroHash, errors.Wrapf(err, "look up tag %s", name)
	}
	tag, err := g.repo.TagObject(ref.Hash())
	switch {
	case err == nil:
		c, err := tag.Commit()
		if err != nil {
			return plumbing.ZeroHash, errors.Wrapf(err, "tag %s does not point at a commit", name)
		}
		return c.Hash, nil
	case errors.Is(err, plumbing.ErrObjectNotFound):
		return ref.Hash(), nil
	default:
		return plumbing.ZeroHash, errors.Wrapf(err, "read tag %s", name)
	}
}

// RemoteURL returns the first URL of the configured remote, or "" when the
// remote does not exist.
func (g *Gateway) RemoteURL(ctx context.Context) (string, error) {
	remote, err := g.repo.Remote(g.remote)
	if errors.Is(err, git.ErrRemoteNotFound) {
		return "", nil
	}
	if err != nil {
		return "", errors.Wrapf(err, "look up remote %s", g.remote)
	}
	urls := remote.Config().URLs
	if len(urls) == 0 {
		return "", nil
	}
	return urls[0], nil
}

// CommitAll stages every change and commits it with message. Commit hooks are
// bypassed: the release commit is machine-generated.
func (g *Gateway) CommitAll(ctx context.Context, message string) error {
	if _, err := g.git(ctx, "add", "--all"); err != nil {
		return err
	}
	_, err := g.git(ctx, "commit", "--no-verify", "-m", message)
	return err
}

// CreateTag creates an annotated tag at HEAD whose message equals its name.
func (g *Gateway) CreateTag(ctx context.Context, name string) error {
	_, err := g.git(ctx, "tag", "-a", name, "-m", name)
	return err
}

// DeleteTag removes a local tag.
func (g *Gateway) DeleteTag(ctx context.Context, name string) error {
	_, err := g.git(ctx, "tag", "-d", name)
	return err
}

// Push atomically pushes HEAD to branch and the tag to the remote: either
// both refs update on the remote or neither does.
func (g *Gateway) Push(ctx context.Context, branch, tag string) error {
	_, err := g.git(ctx, "push", "--atomic", g.remote,
		"HEAD:"+plumbing.NewBranchReferenceName(branch).String(),
		plumbing.NewTagReferenceName(tag).String())
	return err
}

// ResetHard moves the current branch and working tree back to rev.
func (g *Gateway) ResetHard(ctx context.Context, rev string) error {
	_, err := g.git(ctx, "reset", "--hard", rev)
	return err
}

func (g *Gateway) git(ctx context.Context, args ...string) (string, error) {
	out, err := g.run.Run(ctx, execute.Options{
		Command: "git",
		Args:    append([]string{"-C", g.root}, args...),
	})
	if err != nil {
		return out, relerr.Git(err)
	}
	return out, nil
}

func subject(message string) string {
	if i := strings.IndexByte(message, '\n'); i >= 0 {
		message = message[:i]
	}
	return strings.TrimSpace(message)
}
