// Package auth provides machine-to-machine bearer tokens for outbound calls.
package auth

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// Config holds the client-credentials grant settings.
type Config struct {
	TokenURL     string
	ProxyURL     string
	Audience     string
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
}

// TokenSource returns a cached client-credentials token source. When a proxy
// URL is configured tokens are requested from it instead of the issuer.
func TokenSource(ctx context.Context, cfg Config) (oauth2.TokenSource, error) {
	tokenURL := strings.TrimSpace(cfg.ProxyURL)
	if tokenURL == "" {
		tokenURL = strings.TrimSpace(cfg.TokenURL)
	}
	if tokenURL == "" {
		return nil, errors.New("auth: token url is required")
	}
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, errors.New("auth: client id and secret are required")
	}

	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     tokenURL,
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	if cfg.Audience != "" {
		cc.EndpointParams = url.Values{"audience": {cfg.Audience}}
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, &http.Client{Timeout: timeout})

	return oauth2.ReuseTokenSource(nil, cc.TokenSource(ctx)), nil
}

// NewHTTPClient returns an HTTP client that attaches bearer tokens from ts.
func NewHTTPClient(ts oauth2.TokenSource, timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &oauth2.Transport{
			Source: ts,
			Base:   http.DefaultTransport,
		},
	}
}
