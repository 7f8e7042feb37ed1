package override

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

// Identity is the auth profile an override session presents to the
// application under test.
type Identity struct {
	Users       []string
	Roles       []string
	Permissions []string
	Token       string
	ExpiresAt   time.Time
}

// AuthBuilder adds the auth-specific profile helpers to the common
// Builder capability set (§4.9).
type AuthBuilder struct {
	Builder
}

// WithUsers records the set of user identities the override session
// presents as authenticated.
func (a *AuthBuilder) WithUsers(ctx context.Context, users ...string) error {
	return a.With(ctx, map[string]any{"users": users})
}

// WithRoles records the roles the override session's identity holds.
func (a *AuthBuilder) WithRoles(ctx context.Context, roles ...string) error {
	return a.With(ctx, map[string]any{"roles": roles})
}

// WithPermissions records fine-grained permissions beyond role membership.
func (a *AuthBuilder) WithPermissions(ctx context.Context, permissions ...string) error {
	return a.With(ctx, map[string]any{"permissions": permissions})
}

// WithMockAuth installs fn as the full authentication decision callable.
func (a *AuthBuilder) WithMockAuth(ctx context.Context, fn any) error {
	return a.WithMock(ctx, fn)
}

// WithProfile mints a short-lived bearer token for identity and
// records the whole profile as the override implementation. Token
// minting is crypto/rand-backed with a TTL, the same shape as a
// cluster join token generalized to a test-session credential.
func (a *AuthBuilder) WithProfile(ctx context.Context, identity Identity, ttl time.Duration) (Identity, error) {
	token, err := mintToken()
	if err != nil {
		return Identity{}, fmt.Errorf("mint auth override token: %w", err)
	}
	identity.Token = token
	identity.ExpiresAt = time.Now().Add(ttl)

	a.mgr.tokens.put(token, identity)

	if err := a.With(ctx, identity); err != nil {
		return Identity{}, err
	}
	return identity, nil
}

// AsAdmin presents a full-access identity for the duration of the test.
func (a *AuthBuilder) AsAdmin(ctx context.Context) (Identity, error) {
	return a.WithProfile(ctx, Identity{
		Users:       []string{"admin"},
		Roles:       []string{"admin"},
		Permissions: []string{"*"},
	}, defaultProfileTTL)
}

// AsUser presents a regular authenticated identity named name.
func (a *AuthBuilder) AsUser(ctx context.Context, name string) (Identity, error) {
	return a.WithProfile(ctx, Identity{
		Users: []string{name},
		Roles: []string{"user"},
	}, defaultProfileTTL)
}

// AsGuest presents an unauthenticated identity with no roles.
func (a *AuthBuilder) AsGuest(ctx context.Context) (Identity, error) {
	return a.WithProfile(ctx, Identity{
		Users: []string{"guest"},
	}, defaultProfileTTL)
}

const defaultProfileTTL = 1 * time.Hour

func mintToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// tokenStore tracks minted auth-override tokens so ValidateToken can
// check TTL and identity without a round trip to the adapter.
type tokenStore struct {
	mu     sync.RWMutex
	tokens map[string]Identity
}

func newTokenStore() *tokenStore {
	return &tokenStore{tokens: make(map[string]Identity)}
}

func (s *tokenStore) put(token string, identity Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token] = identity
}

// ValidateToken returns the identity behind token, or an error if it
// is unknown or expired.
func (s *tokenStore) ValidateToken(token string) (Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	identity, ok := s.tokens[token]
	if !ok {
		return Identity{}, fmt.Errorf("invalid override token")
	}
	if time.Now().After(identity.ExpiresAt) {
		return Identity{}, fmt.Errorf("override token expired")
	}
	return identity, nil
}

// RevokeToken invalidates token immediately.
func (s *tokenStore) RevokeToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, token)
}
