package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/danukusuma/auth-service/internal/auth/domain"
)

type TokenRepo struct {
	db PgxIface
}

func NewTokenRepo(db PgxIface) *TokenRepo {
	return &TokenRepo{db: db}
}

func (r *TokenRepo) Store(ctx context.Context, token *domain.RefreshToken) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO refresh_tokens (id, account_id, token_hash, expires_at, created_at, revoked)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, token.ID, token.AccountID, token.TokenHash, token.ExpiresAt, token.CreatedAt, token.Revoked)
	return err
}

func (r *TokenRepo) GetByHash(ctx context.Context, hash string) (*domain.RefreshToken, error) {
	var t domain.RefreshToken
	err := r.db.QueryRow(ctx, `
		SELECT id, account_id, token_hash, expires_at, created_at, revoked
		FROM refresh_tokens WHERE token_hash = $1 LIMIT 1
	`, hash).Scan(&t.ID, &t.AccountID, &t.TokenHash, &t.ExpiresAt, &t.CreatedAt, &t.Revoked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get refresh token: %w", err)
	}
	return &t, nil
}

func (r *TokenRepo) Revoke(ctx context.Context, id string) error {
	_, err := r.db.Exec(ctx, `UPDATE refresh_tokens SET revoked = true WHERE id = $1`, id)
	return err
}

func (r *TokenRepo) RevokeAllForAccount(ctx context.Context, accountID string) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE refresh_tokens SET revoked = true WHERE account_id = $1 AND NOT revoked
	`, accountID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *TokenRepo) ActiveCount(ctx context.Context, accountID string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `
		SELECT count(*) FROM refresh_tokens
		WHERE account_id = $1 AND NOT revoked AND expires_at > now()
	`, accountID).Scan(&count)
	return count, err
}

func (r *TokenRepo) DeleteOldestForAccount(ctx context.Context, accountID string) error {
	_, err := r.db.Exec(ctx, `
		DELETE FROM refresh_tokens
		WHERE id = (
			SELECT id FROM refresh_tokens
			WHERE account_id = $1
			ORDER BY created_at ASC, id ASC
			LIMIT 1
		)
	`, accountID)
	return err
}

func (r *TokenRepo) DeleteExpired(ctx context.Context) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM refresh_tokens WHERE expires_at <= now()`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
