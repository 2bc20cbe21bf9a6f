package service

//go:generate mockgen -destination=../../mocks/mock_token_generator.go -package=mocks github.com/danukusuma/auth-service/internal/auth/service TokenGenerator

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/danukusuma/auth-service/internal/auth/domain"
	autherror "github.com/danukusuma/auth-service/internal/errors"
)

type TokenGenerator interface {
	IssueAccess(accountID, email, role string) (string, time.Time, error)
	VerifyAccess(tokenString string) (*JWTCustomClaims, error)
	IssueRefresh(ctx context.Context, accountID string) (string, *domain.RefreshToken, error)
	VerifyRefresh(ctx context.Context, rawToken string) (*domain.RefreshToken, error)
	Revoke(ctx context.Context, token *domain.RefreshToken) error
	RevokeAll(ctx context.Context, accountID string) (int64, error)
	CleanupExpired(ctx context.Context) (int64, error)
	AccessTokenExpiry() time.Duration
	RefreshTokenExpiry() time.Duration
}

// TokenService issues signed access tokens (stateless, verified without a
// database round-trip) and opaque refresh tokens (high-entropy random values
// persisted only as sha256 digests).
type TokenService struct {
	accessSecret       string
	accessTokenExpiry  time.Duration
	refreshTokenExpiry time.Duration
	tokens             domain.TokenRepository
	clock              domain.Clock
}

type JWTCustomClaims struct {
	jwt.RegisteredClaims
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
}

func NewTokenService(accessSecret string, accessMinutes, refreshMinutes int,
	tokens domain.TokenRepository, clock domain.Clock) *TokenService {
	return &TokenService{
		accessSecret:       accessSecret,
		accessTokenExpiry:  time.Duration(accessMinutes) * time.Minute,
		refreshTokenExpiry: time.Duration(refreshMinutes) * time.Minute,
		tokens:             tokens,
		clock:              clock,
	}
}

func (ts *TokenService) IssueAccess(accountID, email, role string) (string, time.Time, error) {
	now := ts.clock.Now()
	expiresAt := now.Add(ts.accessTokenExpiry)

	claims := JWTCustomClaims{
		UserID: accountID,
		Email:  email,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(ts.accessSecret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// VerifyAccess checks signature and expiry only; it never touches storage.
func (ts *TokenService) VerifyAccess(tokenString string) (*JWTCustomClaims, error) {
	claims := &JWTCustomClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(ts.accessSecret), nil
	}, jwt.WithTimeFunc(ts.clock.Now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, autherror.ErrTokenExpired
		}
		return nil, autherror.ErrTokenMalformed
	}
	if !token.Valid {
		return nil, autherror.ErrTokenMalformed
	}
	return claims, nil
}

// IssueRefresh returns the raw token exactly once; only its digest and expiry
// are persisted. The insert completes before the raw value is handed back.
func (ts *TokenService) IssueRefresh(ctx context.Context, accountID string) (string, *domain.RefreshToken, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", nil, err
	}
	raw := hex.EncodeToString(buf)

	now := ts.clock.Now()
	record := &domain.RefreshToken{
		ID:        uuid.NewString(),
		AccountID: accountID,
		TokenHash: HashToken(raw),
		ExpiresAt: now.Add(ts.refreshTokenExpiry),
		CreatedAt: now,
		Revoked:   false,
	}
	if err := ts.tokens.Store(ctx, record); err != nil {
		return "", nil, fmt.Errorf("store refresh token: %w", err)
	}
	return raw, record, nil
}

// VerifyRefresh hashes the input and looks the digest up. Not-found, revoked
// and expired each short-circuit to their own rejection; nothing is mutated.
func (ts *TokenService) VerifyRefresh(ctx context.Context, rawToken string) (*domain.RefreshToken, error) {
	record, err := ts.tokens.GetByHash(ctx, HashToken(rawToken))
	if err != nil {
		return nil, fmt.Errorf("lookup refresh token: %w", err)
	}
	if record == nil {
		return nil, autherror.ErrTokenMalformed
	}
	if record.Revoked {
		return nil, autherror.ErrTokenRevoked
	}
	if !ts.clock.Now().Before(record.ExpiresAt) {
		return nil, autherror.ErrTokenExpired
	}
	return record, nil
}

func (ts *TokenService) Revoke(ctx context.Context, token *domain.RefreshToken) error {
	return ts.tokens.Revoke(ctx, token.ID)
}

func (ts *TokenService) RevokeAll(ctx context.Context, accountID string) (int64, error) {
	return ts.tokens.RevokeAllForAccount(ctx, accountID)
}

// CleanupExpired is an idempotent maintenance sweep.
func (ts *TokenService) CleanupExpired(ctx context.Context) (int64, error) {
	return ts.tokens.DeleteExpired(ctx)
}

func (ts *TokenService) AccessTokenExpiry() time.Duration  { return ts.accessTokenExpiry }
func (ts *TokenService) RefreshTokenExpiry() time.Duration { return ts.refreshTokenExpiry }

// HashToken is the digest used for refresh-token and session lookups.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
