package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/danukusuma/auth-service/internal/auth/domain"
)

type WebAuthnRepo struct {
	db PgxIface
}

func NewWebAuthnRepo(db PgxIface) *WebAuthnRepo {
	return &WebAuthnRepo{db: db}
}

func (r *WebAuthnRepo) CreateCredential(ctx context.Context, cred *domain.WebAuthnCredential) error {
	if cred.Transports == nil {
		cred.Transports = []string{}
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO webauthn_credentials (id, account_id, credential_id, public_key,
			sign_count, label, transports, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, cred.ID, cred.AccountID, cred.CredentialID, cred.PublicKey,
		cred.SignCount, cred.Label, cred.Transports, cred.Active, cred.CreatedAt)
	return err
}

func (r *WebAuthnRepo) CredentialsForAccount(ctx context.Context, accountID string) ([]domain.WebAuthnCredential, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, account_id, credential_id, public_key, sign_count, label,
			transports, active, last_used_at, created_at
		FROM webauthn_credentials WHERE account_id = $1
		ORDER BY created_at ASC
	`, accountID)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	defer rows.Close()

	var creds []domain.WebAuthnCredential
	for rows.Next() {
		var c domain.WebAuthnCredential
		if err := rows.Scan(&c.ID, &c.AccountID, &c.CredentialID, &c.PublicKey,
			&c.SignCount, &c.Label, &c.Transports, &c.Active, &c.LastUsedAt, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan credential: %w", err)
		}
		creds = append(creds, c)
	}
	return creds, rows.Err()
}

func (r *WebAuthnRepo) UpdateSignCount(ctx context.Context, id string, signCount uint32, lastUsedAt time.Time) error {
	_, err := r.db.Exec(ctx, `
		UPDATE webauthn_credentials SET sign_count = $2, last_used_at = $3 WHERE id = $1
	`, id, signCount, lastUsedAt)
	return err
}

func (r *WebAuthnRepo) DeactivateCredential(ctx context.Context, accountID, id string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE webauthn_credentials SET active = false WHERE id = $1 AND account_id = $2
	`, id, accountID)
	return err
}
