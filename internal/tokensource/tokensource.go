package tokensource

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

// DefaultRefreshInterval bounds how long a key read from the store is reused.
const DefaultRefreshInterval = 5 * time.Minute

// storeSource reads the API key from a Store on every call.
type storeSource struct {
	store    Store
	interval time.Duration
}

func (s *storeSource) Token() (*oauth2.Token, error) {
	key, err := s.store.Read(context.Background())
	if err != nil {
		return nil, fmt.Errorf("failed to read API key: %w", err)
	}
	return &oauth2.Token{
		AccessToken: key,
		TokenType:   "api-key",
		Expiry:      time.Now().Add(s.interval),
	}, nil
}

// Option configures NewTokenSource.
type Option func(*storeSource)

// WithRefreshInterval sets how long a key is cached before the store is read again.
func WithRefreshInterval(d time.Duration) Option {
	return func(s *storeSource) { s.interval = d }
}

// NewTokenSource exposes the API key in store as a caching oauth2.TokenSource.
func NewTokenSource(store Store, opts ...Option) oauth2.TokenSource {
	src := &storeSource{store: store, interval: DefaultRefreshInterval}
	for _, opt := range opts {
		opt(src)
	}
	return oauth2.ReuseTokenSource(nil, src)
}

// Transport authenticates requests with the API key from Source as x-api-key.
// oauth2.Transport is not used because the backend expects the key in its own
// header rather than as a bearer token.
type Transport struct {
	Source oauth2.TokenSource
	// Base defaults to http.DefaultTransport.
	Base http.RoundTripper
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.Source == nil {
		return nil, errors.New("tokensource: Transport's Source is nil")
	}

	token, err := t.Source.Token()
	if err != nil {
		if req.Body != nil {
			_ = req.Body.Close()
		}
		return nil, err
	}

	authReq := req.Clone(req.Context())
	authReq.Header.Set("x-api-key", token.AccessToken)
	authReq.Header.Del("Authorization")

	return t.base().RoundTrip(authReq)
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}
