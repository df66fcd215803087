// Package auth answers one question for the sync engine: can this caller
// currently present a valid bearer credential? Token acquisition itself is an
// external collaborator's concern; tokens arrive via SetToken and persist in
// the metadata table across restarts.
package auth

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"ticketkeeper/internal/repositories/metadata"
)

var ErrNoCredential = errors.New("no credential available")

// Source is the credential capability consumed by the sync orchestrator.
type Source interface {
	// IsAuthorized reports whether a currently valid credential is present.
	IsAuthorized(ctx context.Context) bool

	// Credential returns the bearer token, or ErrNoCredential.
	Credential(ctx context.Context) (string, error)
}

// TokenSource keeps the bearer token in the metadata repository and judges
// validity by the token's own exp claim. The signature is deliberately not
// verified here: the engine never authenticates, the remote store does.
type TokenSource struct {
	meta metadata.Repository
	now  func() time.Time
}

func NewTokenSource(meta metadata.Repository) *TokenSource {
	return &TokenSource{meta: meta, now: time.Now}
}

// SetToken persists a freshly acquired credential.
func (s *TokenSource) SetToken(ctx context.Context, token string) error {
	return s.meta.Set(ctx, metadata.KeyToken, []byte(token))
}

// ClearToken drops the stored credential (logout).
func (s *TokenSource) ClearToken(ctx context.Context) error {
	return s.meta.Delete(ctx, metadata.KeyToken)
}

func (s *TokenSource) Credential(ctx context.Context) (string, error) {
	raw, err := s.meta.Get(ctx, metadata.KeyToken)
	if err != nil {
		return "", err
	}
	if len(raw) == 0 {
		return "", ErrNoCredential
	}
	return string(raw), nil
}

func (s *TokenSource) IsAuthorized(ctx context.Context) bool {
	token, err := s.Credential(ctx)
	if err != nil {
		return false
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}

	exp, err := claims.GetExpirationTime()
	if err != nil {
		return false
	}
	if exp == nil {
		// tokens without an exp claim never go stale locally
		return true
	}
	return exp.After(s.now())
}
