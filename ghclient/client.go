// Package ghclient publishes release information to GitHub.
package ghclient

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/google/go-github/v32/github"
	"golang.org/x/oauth2"
)

// Client is a github client bound to one repository.
type Client struct {
	owner string
	repo  string

	c *github.Client
}

// New returns a client for owner/repo. tc may be nil for anonymous access.
func New(tc *http.Client, owner, repo string) *Client {
	return &Client{
		owner: owner,
		repo:  repo,
		c:     github.NewClient(tc),
	}
}

// NewWithToken returns a client authenticated with a static token.
func NewWithToken(ctx context.Context, token, owner, repo string) *Client {
	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: token},
	)
	return New(oauth2.NewClient(ctx, ts), owner, repo)
}

// WithBaseURL points the client at another API root, e.g. GitHub Enterprise
// or a test server. The URL must end with a slash.
func (c *Client) WithBaseURL(u *url.URL) *Client {
	c.c.BaseURL = u
	return c
}

// CommitURL returns the web URL of a commit.
func (c *Client) CommitURL(hash string) string {
	return fmt.Sprintf("https://github.com/%s/%s/commit/%s", c.owner, c.repo, hash)
}

// PublishRelease creates the GitHub release for tag, or updates its body when
// a release for that tag already exists. It returns the release page URL.
func (c *Client) PublishRelease(ctx context.Context, tag, body string) (string, error) {
	existing, resp, err := c.c.Repositories.GetReleaseByTag(ctx, c.owner, c.repo, tag)
	if err != nil && (resp == nil || resp.StatusCode != http.StatusNotFound) {
		return "", errors.Wrapf(err, "look up release %s", tag)
	}

	if existing != nil && err == nil {
		existing.Body = github.String(body)
		updated, _, err := c.c.Repositories.EditRelease(ctx, c.owner, c.repo, existing.GetID(), existing)
		if err != nil {
			return "", errors.Wrapf(err, "update release %s", tag)
		}
		return updated.GetHTMLURL(), nil
	}

	created, _, err := c.c.Repositories.CreateRelease(ctx, c.owner, c.repo, &github.RepositoryRelease{
		TagName: github.String(tag),
		Name:    github.String(tag),
		Body:    github.String(body),
	})
	if err != nil {
		return "", errors.Wrapf(err, "create release %s", tag)
	}
	return created.GetHTMLURL(), nil
}

var remotePattern = regexp.MustCompile(`^(?:https?://|ssh://|git://)?(?:[^@/]+@)?github\.com[:/]([^/]+)/([^/]+?)(?:\.git)?/?$`)

// ParseRemote extracts owner and repository from a GitHub remote URL in any
// of the https, ssh or scp-like forms. ok is false for non-GitHub remotes.
func ParseRemote(remote string) (owner, repo string, ok bool) {
	m := remotePattern.FindStringSubmatch(strings.TrimSpace(remote))
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}
