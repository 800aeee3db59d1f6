// Package tokenstore holds short-lived credentials (GitHub App installation
// tokens) so they can be reused until shortly before they expire.
package tokenstore

import (
	"context"
	"errors"
	"time"
)

var (
	ErrTokenNotFound = errors.New("token not found")
	ErrTokenExpired  = errors.New("token expired")
)

// Token is a stored credential.
type Token struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ExpiredAt reports whether the token is no longer valid at now.
func (t *Token) ExpiredAt(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// Store defines the token storage interface.
type Store interface {
	// Set stores a token with the given key and TTL.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// Get retrieves a token by key. Returns ErrTokenNotFound or ErrTokenExpired.
	Get(ctx context.Context, key string) (*Token, error)
	// Delete removes a token by key.
	Delete(ctx context.Context, key string) error
	// Cleanup removes all expired tokens.
	Cleanup(ctx context.Context) (int, error)
}

// Option configures a store.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}
