// Package auth holds the Gmail access token pushed in by the browser
// extension and serves the loopback side-channel it is pushed through.
package auth

import (
	"errors"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// ErrTokenNotSet indicates no OAuth token is available.
var ErrTokenNotSet = errors.New("no token defined")

// ErrTokenExpired indicates the held token is past its expiry.
var ErrTokenExpired = errors.New("token expired")

// DefaultTTL is the lifetime given to a token when none is configured.
const DefaultTTL = time.Hour

// Status is a point-in-time view of the token for health reporting.
type Status struct {
	Valid  bool
	Expiry time.Time
}

// Token keeps one access token in memory. It is never written to disk.
type Token struct {
	mu    sync.RWMutex
	token *oauth2.Token
	ttl   time.Duration
	now   func() time.Time
}

type TokenOption func(*Token)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) TokenOption {
	return func(t *Token) { t.now = now }
}

// NewToken returns an empty token store. Authorized tokens live for ttl.
func NewToken(ttl time.Duration, opts ...TokenOption) *Token {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	t := &Token{ttl: ttl, now: time.Now}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Authorize replaces the held token and returns its expiry.
func (t *Token) Authorize(accessToken string) (time.Time, error) {
	accessToken = strings.TrimSpace(accessToken)
	if accessToken == "" {
		return time.Time{}, errors.New("token must not be blank")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	expiry := t.now().Add(t.ttl)
	t.token = &oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
		Expiry:      expiry,
	}
	return expiry, nil
}

// OAuthToken returns the current OAuth2 token. Expiry is checked on every
// call.
func (t *Token) OAuthToken() (*oauth2.Token, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.token == nil {
		return nil, ErrTokenNotSet
	}
	if !t.now().Before(t.token.Expiry) {
		return nil, ErrTokenExpired
	}

	tok := *t.token
	return &tok, nil
}

func (t *Token) Status() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.token == nil {
		return Status{}
	}
	return Status{
		Valid:  t.now().Before(t.token.Expiry),
		Expiry: t.token.Expiry,
	}
}
