package shared

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"golang.org/x/oauth2"
)

// LoadToken reads an OAuth token written by an external authorization flow.
// ytr never runs the consent flow or refreshes credentials itself; it only
// consumes the token file named in the configuration.
func LoadToken(path string) (*oauth2.Token, error) {
	expanded, err := ExpandPath(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(expanded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuth, err)
	}

	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("%w: malformed token file %s: %v", ErrAuth, expanded, err)
	}

	if token.AccessToken == "" {
		return nil, fmt.Errorf("%w: token file %s has no access token", ErrAuth, expanded)
	}

	return &token, nil
}

// NewAuthClient builds an HTTP client that attaches the stored bearer token
// to every request. An expired token surfaces as ErrAuth from the remote
// service; re-running the external auth flow is the operator's job.
func NewAuthClient(ctx context.Context, tokenFile string) (*http.Client, error) {
	token, err := LoadToken(tokenFile)
	if err != nil {
		return nil, err
	}
	return oauth2.NewClient(ctx, oauth2.StaticTokenSource(token)), nil
}
