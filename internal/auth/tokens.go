package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrTokenRevoked is returned when a refresh token was already used or revoked.
var ErrTokenRevoked = errors.New("refresh token revoked")

// TokenStore persists refresh tokens for rotation checks.
type TokenStore struct {
	db *sql.DB
}

// NewTokenStore creates a store on db.
func NewTokenStore(db *sql.DB) *TokenStore {
	return &TokenStore{db: db}
}

// Save stores a refresh token.
func (s *TokenStore) Save(ctx context.Context, subject, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_tokens (token, subject, expires_at, revoked)
		VALUES ($1, $2, $3, FALSE)
	`, token, subject, expiresAt.UTC())
	return err
}

// Revoke marks a token revoked. It returns ErrTokenRevoked when the token is
// unknown or already revoked, so a token can be consumed at most once.
func (s *TokenStore) Revoke(ctx context.Context, token string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE refresh_tokens SET revoked = TRUE WHERE token = $1 AND revoked = FALSE`, token)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrTokenRevoked
	}
	return nil
}

// Sessions issues and rotates token pairs.
type Sessions struct {
	Issuer *Issuer
	Tokens *TokenStore
}

// Start issues a fresh pair for id and records its refresh token.
func (s *Sessions) Start(ctx context.Context, id Identity) (TokenPair, error) {
	pair, err := s.Issuer.Issue(id)
	if err != nil {
		return TokenPair{}, fmt.Errorf("auth: issue: %w", err)
	}
	if err := s.Tokens.Save(ctx, id.UserID, pair.RefreshToken, pair.RefreshExp); err != nil {
		return TokenPair{}, fmt.Errorf("auth: save refresh token: %w", err)
	}
	return pair, nil
}

// Refresh consumes a refresh token and issues a new pair for the same identity.
func (s *Sessions) Refresh(ctx context.Context, refreshToken string) (TokenPair, Identity, error) {
	claims, err := s.Issuer.Parse(refreshToken, KindRefresh)
	if err != nil {
		return TokenPair{}, Identity{}, err
	}
	if err := s.Tokens.Revoke(ctx, refreshToken); err != nil {
		return TokenPair{}, Identity{}, err
	}
	id := claims.Identity()
	pair, err := s.Start(ctx, id)
	return pair, id, err
}

// End revokes a refresh token. Unknown tokens are ignored.
func (s *Sessions) End(ctx context.Context, refreshToken string) error {
	err := s.Tokens.Revoke(ctx, refreshToken)
	if errors.Is(err, ErrTokenRevoked) {
		return nil
	}
	return err
}
