// Package registry talks to the package registry and owns the operator's
// registry credential.
package registry

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/oauth2"

	"github.com/menghanl/release-gen/internal/relerr"
)

// DefaultURL is the public npm registry.
const DefaultURL = "https://registry.npmjs.org"

const whoamiTimeout = 15 * time.Second

// Client issues authenticated queries against one registry.
type Client struct {
	baseURL string
	// base is the transport the bearer token is layered on; nil means
	// http.DefaultClient.
	base *http.Client
}

// NewClient returns a client for the registry at baseURL.
func NewClient(baseURL string, base *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), base: base}
}

type whoamiResponse struct {
	Username string `json:"username"`
}

// Whoami returns the account name the token belongs to.
//
// A missing token or a 401/403 answer is classified as relerr.ErrUnauthenticated;
// any other failure is relerr.ErrRegistry.
func (c *Client) Whoami(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", relerr.Unauthenticated(errors.New("no registry credential stored"))
	}

	ctx, cancel := context.WithTimeout(ctx, whoamiTimeout)
	defer cancel()
	if c.base != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, c.base)
	}
	hc := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/-/whoami", nil)
	if err != nil {
		return "", relerr.Registry(errors.Wrap(err, "build whoami request"))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := hc.Do(req)
	if err != nil {
		return "", relerr.Registry(errors.Wrap(err, "registry whoami"))
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return "", relerr.Unauthenticated(statusError(resp.StatusCode, body))
	case resp.StatusCode != http.StatusOK:
		return "", relerr.Registry(statusError(resp.StatusCode, body))
	}

	var who whoamiResponse
	if err := json.Unmarshal(body, &who); err != nil {
		return "", relerr.Registry(errors.Wrap(err, "decode whoami response"))
	}
	if who.Username == "" {
		return "", relerr.Unauthenticated(errors.New("registry did not recognise the credential"))
	}
	return who.Username, nil
}

func statusError(code int, body []byte) error {
	msg := strings.TrimSpace(string(body))
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &e) == nil && e.Error != "" {
		msg = e.Error
	}
	if msg == "" {
		msg = http.StatusText(code)
	}
	return errors.Newf("registry whoami: %d %s", code, msg)
}
