package apiclient

import (
	"context"
	"net/url"
	"sync"
	"time"
)

// tokenRefreshSlack is how much validity must remain before the cached
// token is reused. Below that the source mints a fresh one, so a request
// never goes out with a token about to lapse mid-flight.
const tokenRefreshSlack = time.Minute

// TokenResponse is the RFC 6749 §5.1 token endpoint body.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// TokenSource mints and caches service-account access tokens via the
// OAuth2 client-credentials grant. Safe for concurrent use.
type TokenSource struct {
	client       *Client
	clientID     string
	clientSecret string

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// NewTokenSource creates a token source for the given service account.
// The client needs no credentials of its own; the token endpoint is open.
func NewTokenSource(client *Client, clientID, clientSecret string) *TokenSource {
	return &TokenSource{
		client:       client,
		clientID:     clientID,
		clientSecret: clientSecret,
	}
}

// Token returns a valid access token, reusing the cached one while enough
// validity remains.
func (ts *TokenSource) Token(ctx context.Context) (string, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if ts.token != "" && time.Until(ts.expiresAt) > tokenRefreshSlack {
		return ts.token, nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", ts.clientID)
	form.Set("client_secret", ts.clientSecret)

	var resp TokenResponse
	if err := ts.client.postForm(ctx, "/api/v1/oauth/token", form, &resp); err != nil {
		return "", err
	}

	ts.token = resp.AccessToken
	ts.expiresAt = time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second)
	return ts.token, nil
}
