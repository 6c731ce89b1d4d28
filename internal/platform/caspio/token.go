package caspio

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"
)

// TokenSource yields a bearer token for the REST API.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// ClientCredentials exchanges a client id and secret for an access token on
// every call. Nothing is cached; callers ask once per unit of work.
type ClientCredentials struct {
	http         *resty.Client
	clientID     string
	clientSecret string
}

func NewClientCredentials(http *resty.Client, clientID, clientSecret string) *ClientCredentials {
	return &ClientCredentials{http: http, clientID: clientID, clientSecret: clientSecret}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

func (c *ClientCredentials) Token(ctx context.Context) (string, error) {
	var out tokenResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"grant_type":    "client_credentials",
			"client_id":     c.clientID,
			"client_secret": c.clientSecret,
		}).
		SetResult(&out).
		Post("/oauth/token")
	if err != nil {
		return "", fmt.Errorf("request token: %w", err)
	}
	if resp.IsError() {
		return "", &StatusError{Op: "token", StatusCode: resp.StatusCode(), Body: resp.String()}
	}
	if out.AccessToken == "" {
		return "", fmt.Errorf("token response has no access_token")
	}
	return out.AccessToken, nil
}
