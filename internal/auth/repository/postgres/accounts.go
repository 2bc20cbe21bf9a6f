package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/danukusuma/auth-service/internal/auth/domain"
)

type AccountRepo struct {
	db PgxIface
}

func NewAccountRepo(db PgxIface) *AccountRepo {
	return &AccountRepo{db: db}
}

const accountColumns = `id, email, password_hash, role_id, role_name, active,
		totp_secret_enc, two_factor_on, backup_codes, allowed_ips, last_known_ip,
		failed_logins, locked_until, created_at, updated_at`

func (r *AccountRepo) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE email = $1 LIMIT 1`
	return scanAccount(r.db.QueryRow(ctx, query, email))
}

func (r *AccountRepo) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1 LIMIT 1`
	return scanAccount(r.db.QueryRow(ctx, query, id))
}

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var a domain.Account
	err := row.Scan(&a.ID, &a.Email, &a.PasswordHash, &a.RoleID, &a.RoleName, &a.Active,
		&a.TOTPSecretEnc, &a.TwoFactorOn, &a.BackupCodes, &a.AllowedIPs, &a.LastKnownIP,
		&a.FailedLogins, &a.LockedUntil, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan account: %w", err)
	}
	return &a, nil
}

func (r *AccountRepo) Create(ctx context.Context, account *domain.Account) error {
	if account.BackupCodes == nil {
		account.BackupCodes = []string{}
	}
	if account.AllowedIPs == nil {
		account.AllowedIPs = []string{}
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO accounts (id, email, password_hash, role_id, role_name, active,
			totp_secret_enc, two_factor_on, backup_codes, allowed_ips, last_known_ip,
			failed_logins, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, account.ID, account.Email, account.PasswordHash, account.RoleID, account.RoleName,
		account.Active, account.TOTPSecretEnc, account.TwoFactorOn, account.BackupCodes,
		account.AllowedIPs, account.LastKnownIP, account.FailedLogins,
		account.CreatedAt, account.UpdatedAt)
	return err
}

func (r *AccountRepo) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE accounts SET password_hash = $2, updated_at = now() WHERE id = $1
	`, id, hash)
	return err
}

func (r *AccountRepo) SetActive(ctx context.Context, id string, active bool) error {
	_, err := r.db.Exec(ctx, `
		UPDATE accounts SET active = $2, updated_at = now() WHERE id = $1
	`, id, active)
	return err
}

// RegisterFailedAttempt is the lockout linearization point: the increment and
// the threshold comparison happen in one statement, so concurrent failures
// each observe a distinct post-increment counter and exactly one sees the
// crossing value.
func (r *AccountRepo) RegisterFailedAttempt(ctx context.Context, id string,
	threshold int, lockFor time.Duration) (int, *time.Time, error) {
	var count int
	var lockedUntil *time.Time
	err := r.db.QueryRow(ctx, `
		UPDATE accounts
		SET failed_logins = failed_logins + 1,
			locked_until = CASE
				WHEN failed_logins + 1 >= $2 THEN now() + make_interval(secs => $3)
				ELSE locked_until
			END,
			updated_at = now()
		WHERE id = $1
		RETURNING failed_logins, locked_until
	`, id, threshold, lockFor.Seconds()).Scan(&count, &lockedUntil)
	if err != nil {
		return 0, nil, fmt.Errorf("register failed attempt: %w", err)
	}
	return count, lockedUntil, nil
}

func (r *AccountRepo) ResetLockout(ctx context.Context, id, lastKnownIP string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE accounts
		SET failed_logins = 0,
			locked_until = NULL,
			last_known_ip = CASE WHEN $2 <> '' THEN $2 ELSE last_known_ip END,
			updated_at = now()
		WHERE id = $1
	`, id, lastKnownIP)
	return err
}

func (r *AccountRepo) SetTwoFactor(ctx context.Context, id, secretEnc string, enabled bool) error {
	_, err := r.db.Exec(ctx, `
		UPDATE accounts SET totp_secret_enc = $2, two_factor_on = $3, updated_at = now() WHERE id = $1
	`, id, secretEnc, enabled)
	return err
}

func (r *AccountRepo) SetBackupCodes(ctx context.Context, id string, hashes []string) error {
	if hashes == nil {
		hashes = []string{}
	}
	_, err := r.db.Exec(ctx, `
		UPDATE accounts SET backup_codes = $2, updated_at = now() WHERE id = $1
	`, id, hashes)
	return err
}

func (r *AccountRepo) SetAllowedIPs(ctx context.Context, id string, entries []string) error {
	if entries == nil {
		entries = []string{}
	}
	_, err := r.db.Exec(ctx, `
		UPDATE accounts SET allowed_ips = $2, updated_at = now() WHERE id = $1
	`, id, entries)
	return err
}
