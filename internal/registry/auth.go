package registry

import (
	"context"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/menghanl/release-gen/internal/relerr"
)

// Verifier checks a token against the registry.
type Verifier interface {
	Whoami(ctx context.Context, token string) (string, error)
}

// TokenStore persists one token per repository.
type TokenStore interface {
	Token(key string) (string, bool, error)
	SetToken(key, token string) error
}

// Prompter is the subset of the operator console the handshake needs.
type Prompter interface {
	Warnf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Printf(format string, args ...interface{})
	Ask(ctx context.Context, message, def string) (string, error)
	AskSecret(ctx context.Context, message string) (string, error)
	Continue(ctx context.Context, message string) error
}

// BrowserOpener launches a URL without waiting for the browser to exit.
type BrowserOpener interface {
	Open(url string) error
}

// AuthOptions configures the login handshake.
type AuthOptions struct {
	// RepoRoot keys the stored credential.
	RepoRoot string
	// PackageName is the root manifest name, used to suggest a token name.
	PackageName string
	// TokenURL is the token creation page; {account} is replaced by the account.
	TokenURL string
	// AccountEnv names the variable holding the registry account.
	AccountEnv string
	// Attempts bounds the number of handshakes per run.
	Attempts int
	// BrowserPause is waited after launching the browser.
	BrowserPause time.Duration
}

// Authenticator validates the stored registry credential and, when it is
// missing or rejected, walks the operator through creating a new one.
type Authenticator struct {
	verifier Verifier
	store    TokenStore
	prompt   Prompter
	browser  BrowserOpener
	opts     AuthOptions
	log      *zap.Logger

	getenv func(string) string
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewAuthenticator wires an Authenticator from its collaborators.
func NewAuthenticator(v Verifier, store TokenStore, p Prompter, b BrowserOpener, opts AuthOptions, log *zap.Logger) *Authenticator {
	if opts.Attempts < 1 {
		opts.Attempts = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Authenticator{
		verifier: v,
		store:    store,
		prompt:   p,
		browser:  b,
		opts:     opts,
		log:      log,
		getenv:   os.Getenv,
		sleep:    sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Token returns the stored credential for the repository, or "" when none.
func (a *Authenticator) Token() (string, error) {
	token, _, err := a.store.Token(a.opts.RepoRoot)
	return token, err
}

func (a *Authenticator) check(ctx context.Context) error {
	token, err := a.Token()
	if err != nil {
		return err
	}
	user, err := a.verifier.Whoami(ctx, token)
	if err != nil {
		return err
	}
	a.log.Debug("Registry credential valid", zap.String("user", user))
	return nil
}

// IsAuthenticated reports whether the stored credential is accepted by the
// registry. Every failure reads as false. It never writes.
func (a *Authenticator) IsAuthenticated(ctx context.Context) bool {
	return a.check(ctx) == nil
}

// EnsureLogin returns immediately when the stored credential is valid.
// Otherwise it runs the interactive handshake and re-checks, up to
// AuthOptions.Attempts times. Registry errors other than an authentication
// rejection abort without prompting.
func (a *Authenticator) EnsureLogin(ctx context.Context) error {
	for attempt := 1; ; attempt++ {
		err := a.check(ctx)
		if err == nil {
			return nil
		}
		if !errors.Is(err, relerr.ErrUnauthenticated) {
			return err
		}
		if attempt > a.opts.Attempts {
			return relerr.LoginAttemptsExhausted(a.opts.Attempts)
		}
		a.log.Info("Registry login required", zap.Int("attempt", attempt), zap.Error(err))
		if err := a.handshake(ctx); err != nil {
			return err
		}
	}
}

func (a *Authenticator) handshake(ctx context.Context) error {
	p := a.prompt
	p.Warnf("No valid registry credential found for this repository.")

	p.Infof("Create a granular access token with these settings:")
	p.Printf("  Token name:  %s\n", SuggestTokenName(a.opts.PackageName))
	p.Printf("  Expiration:  90 days\n")
	p.Printf("  Packages:    Read and write\n")
	p.Printf("  Bypass 2FA:  enabled\n")

	account, err := a.account(ctx)
	if err != nil {
		return err
	}
	url := strings.ReplaceAll(a.opts.TokenURL, "{account}", account)

	if err := p.Continue(ctx, "Press enter to open "+url); err != nil {
		return err
	}
	if err := a.browser.Open(url); err != nil {
		// The operator can still open the page by hand.
		a.log.Warn("Could not open browser", zap.Error(err))
		p.Warnf("Open %s in your browser.", url)
	}
	if err := a.sleep(ctx, a.opts.BrowserPause); err != nil {
		return relerr.PromptTimeout(err)
	}

	token, err := p.AskSecret(ctx, "Paste the new token")
	if err != nil {
		return err
	}
	if token == "" {
		p.Warnf("No token entered.")
		return nil
	}
	if err := a.store.SetToken(a.opts.RepoRoot, token); err != nil {
		return errors.Wrap(err, "save registry credential")
	}
	return nil
}

func (a *Authenticator) account(ctx context.Context) (string, error) {
	if a.opts.AccountEnv != "" {
		if v := strings.TrimSpace(a.getenv(a.opts.AccountEnv)); v != "" {
			return v, nil
		}
	}
	for {
		v, err := a.prompt.Ask(ctx, "Registry account name", "")
		if err != nil {
			return "", err
		}
		if v != "" {
			return v, nil
		}
	}
}

var (
	rootSuffix = regexp.MustCompile(`-(root|monorepo)$`)
	separators = strings.NewReplacer("/", "_", "-", "_", ".", "_")
)

// SuggestTokenName derives a token name from a package name, e.g.
// "@acme/widgets-monorepo" becomes "ACME_WIDGETS".
func SuggestTokenName(pkg string) string {
	name := rootSuffix.ReplaceAllString(strings.TrimSpace(pkg), "")
	name = strings.TrimPrefix(name, "@")
	name = separators.Replace(strings.ToUpper(name))
	if name == "" {
		return "RELEASE_GEN"
	}
	return name
}
