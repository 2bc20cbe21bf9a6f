package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danukusuma/auth-service/internal/auth/domain"
	autherror "github.com/danukusuma/auth-service/internal/errors"
)

// memTokenRepo is a map-backed TokenRepository for exercising the token
// service without a database.
type memTokenRepo struct {
	byHash map[string]*domain.RefreshToken
}

func newMemTokenRepo() *memTokenRepo {
	return &memTokenRepo{byHash: make(map[string]*domain.RefreshToken)}
}

func (r *memTokenRepo) Store(_ context.Context, token *domain.RefreshToken) error {
	cp := *token
	r.byHash[token.TokenHash] = &cp
	return nil
}

func (r *memTokenRepo) GetByHash(_ context.Context, hash string) (*domain.RefreshToken, error) {
	t, ok := r.byHash[hash]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (r *memTokenRepo) Revoke(_ context.Context, id string) error {
	for _, t := range r.byHash {
		if t.ID == id {
			t.Revoked = true
		}
	}
	return nil
}

func (r *memTokenRepo) RevokeAllForAccount(_ context.Context, accountID string) (int64, error) {
	var n int64
	for _, t := range r.byHash {
		if t.AccountID == accountID && !t.Revoked {
			t.Revoked = true
			n++
		}
	}
	return n, nil
}

func (r *memTokenRepo) ActiveCount(_ context.Context, accountID string) (int, error) {
	n := 0
	for _, t := range r.byHash {
		if t.AccountID == accountID && !t.Revoked {
			n++
		}
	}
	return n, nil
}

func (r *memTokenRepo) DeleteOldestForAccount(_ context.Context, accountID string) error {
	var oldest *domain.RefreshToken
	for _, t := range r.byHash {
		if t.AccountID != accountID {
			continue
		}
		if oldest == nil || t.CreatedAt.Before(oldest.CreatedAt) {
			oldest = t
		}
	}
	if oldest != nil {
		delete(r.byHash, oldest.TokenHash)
	}
	return nil
}

func (r *memTokenRepo) DeleteExpired(_ context.Context) (int64, error) {
	var n int64
	for hash, t := range r.byHash {
		if !t.ExpiresAt.After(time.Now()) {
			delete(r.byHash, hash)
			n++
		}
	}
	return n, nil
}

func newTestTokenService(clock domain.Clock) (*TokenService, *memTokenRepo) {
	repo := newMemTokenRepo()
	return NewTokenService("test-secret", 15, 60, repo, clock), repo
}

func TestIssueAndVerifyAccess(t *testing.T) {
	clock := newFakeClock(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	ts, _ := newTestTokenService(clock)

	signed, expiresAt, err := ts.IssueAccess("acc-1", "user@example.com", "admin")
	require.NoError(t, err)
	assert.Equal(t, clock.Now().Add(15*time.Minute), expiresAt)

	claims, err := ts.VerifyAccess(signed)
	require.NoError(t, err)
	assert.Equal(t, "acc-1", claims.UserID)
	assert.Equal(t, "user@example.com", claims.Email)
	assert.Equal(t, "admin", claims.Role)
	assert.Equal(t, "acc-1", claims.Subject)
}

func TestVerifyAccessExpired(t *testing.T) {
	clock := newFakeClock(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	ts, _ := newTestTokenService(clock)

	signed, _, err := ts.IssueAccess("acc-1", "user@example.com", "user")
	require.NoError(t, err)

	clock.Advance(16 * time.Minute)
	_, err = ts.VerifyAccess(signed)
	assert.ErrorIs(t, err, autherror.ErrTokenExpired)
}

func TestVerifyAccessWrongSecret(t *testing.T) {
	clock := newFakeClock(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	ts, _ := newTestTokenService(clock)
	other := NewTokenService("other-secret", 15, 60, newMemTokenRepo(), clock)

	signed, _, err := other.IssueAccess("acc-1", "user@example.com", "user")
	require.NoError(t, err)

	_, err = ts.VerifyAccess(signed)
	assert.ErrorIs(t, err, autherror.ErrTokenMalformed)
}

func TestVerifyAccessGarbage(t *testing.T) {
	clock := newFakeClock(time.Now())
	ts, _ := newTestTokenService(clock)

	_, err := ts.VerifyAccess("not-a-jwt")
	assert.ErrorIs(t, err, autherror.ErrTokenMalformed)
}

func TestIssueRefreshPersistsDigestOnly(t *testing.T) {
	clock := newFakeClock(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	ts, repo := newTestTokenService(clock)

	raw, record, err := ts.IssueRefresh(context.Background(), "acc-1")
	require.NoError(t, err)
	assert.Len(t, raw, 64) // 32 bytes hex
	assert.Equal(t, HashToken(raw), record.TokenHash)
	assert.NotEqual(t, raw, record.TokenHash)

	stored, err := repo.GetByHash(context.Background(), HashToken(raw))
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, record.ID, stored.ID)
	assert.Equal(t, clock.Now().Add(60*time.Minute), stored.ExpiresAt)
}

func TestIssueRefreshDistinct(t *testing.T) {
	clock := newFakeClock(time.Now())
	ts, _ := newTestTokenService(clock)

	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		raw, _, err := ts.IssueRefresh(context.Background(), "acc-1")
		require.NoError(t, err)
		_, dup := seen[raw]
		require.False(t, dup, "raw refresh tokens must never repeat")
		seen[raw] = struct{}{}
	}
}

func TestVerifyRefresh(t *testing.T) {
	clock := newFakeClock(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	ts, _ := newTestTokenService(clock)
	ctx := context.Background()

	raw, record, err := ts.IssueRefresh(ctx, "acc-1")
	require.NoError(t, err)

	t.Run("valid", func(t *testing.T) {
		got, err := ts.VerifyRefresh(ctx, raw)
		require.NoError(t, err)
		assert.Equal(t, record.ID, got.ID)
	})

	t.Run("unknown token", func(t *testing.T) {
		_, err := ts.VerifyRefresh(ctx, "deadbeef")
		assert.ErrorIs(t, err, autherror.ErrTokenMalformed)
	})

	t.Run("revoked", func(t *testing.T) {
		require.NoError(t, ts.Revoke(ctx, record))
		_, err := ts.VerifyRefresh(ctx, raw)
		assert.ErrorIs(t, err, autherror.ErrTokenRevoked)
	})

	t.Run("expired", func(t *testing.T) {
		raw2, _, err := ts.IssueRefresh(ctx, "acc-1")
		require.NoError(t, err)
		clock.Advance(61 * time.Minute)
		_, err = ts.VerifyRefresh(ctx, raw2)
		assert.ErrorIs(t, err, autherror.ErrTokenExpired)
	})
}

func TestHashTokenDeterministic(t *testing.T) {
	assert.Equal(t, HashToken("abc"), HashToken("abc"))
	assert.NotEqual(t, HashToken("abc"), HashToken("abd"))
	assert.Len(t, HashToken("abc"), 64)
}
