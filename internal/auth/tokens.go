package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/coursedeck/backend/internal/config"
	"github.com/coursedeck/backend/internal/models"
	"github.com/coursedeck/backend/internal/repositories"
)

var (
	// ErrTokenInvalid indicates a token whose signature or expiry failed verification.
	ErrTokenInvalid = errors.New("token signature invalid or expired")
	// ErrIdentityNotFound indicates the token decoded to an identity that no longer exists.
	ErrIdentityNotFound = errors.New("token identity not found")
	// ErrTokenMismatch indicates a signature-valid refresh token that does not equal
	// the identity's stored slot, i.e. it has been superseded by a later login or rotation.
	ErrTokenMismatch = errors.New("refresh token mismatch")
)

// IdentityStore is the persistence surface the token service needs: identity
// lookup plus the single refresh-token slot under atomic per-row update.
type IdentityStore interface {
	FindByID(ctx context.Context, id string) (models.Identity, error)
	SetRefreshToken(ctx context.Context, id, token string) error
}

// AccessClaims is the payload of a signed access token. Subject carries the
// identity id; the display fields let callers render without a lookup.
type AccessClaims struct {
	Email    string      `json:"email"`
	FullName string      `json:"fullName"`
	Role     models.Role `json:"role"`
	jwt.RegisteredClaims
}

// refreshClaims carries only the identity id, matching the minimal refresh payload.
type refreshClaims struct {
	jwt.RegisteredClaims
}

// TokenService issues, verifies, and rotates the signed session token pair.
// Access and refresh tokens are signed with distinct secrets and expiries.
type TokenService struct {
	cfg        config.TokenConfig
	identities IdentityStore
	now        func() time.Time
}

// NewTokenService constructs a TokenService backed by the provided identity store.
func NewTokenService(cfg config.TokenConfig, identities IdentityStore) *TokenService {
	if identities == nil {
		panic("auth: identity store must not be nil")
	}
	return &TokenService{cfg: cfg, identities: identities, now: func() time.Time { return time.Now().UTC() }}
}

// WithNowFunc overrides the time source. Useful for expiry tests.
func (s *TokenService) WithNowFunc(now func() time.Time) *TokenService {
	s.now = now
	return s
}

// IssuePair signs a fresh access/refresh pair for the identity and persists
// the refresh token as the identity's single session slot, superseding any
// previous session.
func (s *TokenService) IssuePair(ctx context.Context, identity models.Identity) (models.TokenPair, error) {
	if identity.ID == "" {
		return models.TokenPair{}, errors.New("identity id must be provided")
	}

	now := s.now()
	accessExpiry := now.Add(s.cfg.AccessTTL)
	refreshExpiry := now.Add(s.cfg.RefreshTTL)

	access := jwt.NewWithClaims(jwt.SigningMethodHS256, AccessClaims{
		Email:    identity.Email,
		FullName: identity.FullName,
		Role:     identity.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(accessExpiry),
		},
	})
	accessToken, err := access.SignedString([]byte(s.cfg.AccessSecret))
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("sign access token: %w", err)
	}

	// The ID claim makes every minted refresh token distinct even within the
	// same second, so supersession by slot comparison cannot alias.
	refresh := jwt.NewWithClaims(jwt.SigningMethodHS256, refreshClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   identity.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(refreshExpiry),
		},
	})
	refreshToken, err := refresh.SignedString([]byte(s.cfg.RefreshSecret))
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("sign refresh token: %w", err)
	}

	if err := s.identities.SetRefreshToken(ctx, identity.ID, refreshToken); err != nil {
		return models.TokenPair{}, fmt.Errorf("persist refresh token: %w", err)
	}

	return models.TokenPair{
		AccessToken:      accessToken,
		AccessExpiresAt:  accessExpiry,
		RefreshToken:     refreshToken,
		RefreshExpiresAt: refreshExpiry,
	}, nil
}

// VerifyAccess validates an access token against the access secret and
// returns its claims.
func (s *TokenService) VerifyAccess(token string) (AccessClaims, error) {
	var claims AccessClaims
	if err := s.parse(token, &claims, s.cfg.AccessSecret); err != nil {
		return AccessClaims{}, err
	}
	return claims, nil
}

// Rotate exchanges a presented refresh token for a new pair.
//
// The presented token must verify under the refresh secret, decode to a live
// identity, and exactly equal that identity's stored slot. The equality check
// makes refresh tokens single-use by comparison: a stale token whose signature
// is still valid fails with ErrTokenMismatch once a later login or rotation
// has overwritten the slot. The winner of a concurrent rotation race persists
// its new token; the loser observes the mismatch.
func (s *TokenService) Rotate(ctx context.Context, presented string) (models.Identity, models.TokenPair, error) {
	var claims refreshClaims
	if err := s.parse(presented, &claims, s.cfg.RefreshSecret); err != nil {
		return models.Identity{}, models.TokenPair{}, err
	}

	identity, err := s.identities.FindByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return models.Identity{}, models.TokenPair{}, ErrIdentityNotFound
		}
		return models.Identity{}, models.TokenPair{}, fmt.Errorf("load identity %s: %w", claims.Subject, err)
	}

	if identity.RefreshToken == "" || identity.RefreshToken != presented {
		return models.Identity{}, models.TokenPair{}, ErrTokenMismatch
	}

	pair, err := s.IssuePair(ctx, identity)
	if err != nil {
		return models.Identity{}, models.TokenPair{}, err
	}

	return identity, pair, nil
}

func (s *TokenService) parse(token string, claims jwt.Claims, secret string) error {
	if token == "" {
		return ErrTokenInvalid
	}

	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return []byte(secret), nil
	}, jwt.WithTimeFunc(s.now), jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !parsed.Valid {
		return ErrTokenInvalid
	}

	return nil
}
