package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/danukusuma/auth-service/internal/auth/domain"
)

type SessionRepo struct {
	db PgxIface
}

func NewSessionRepo(db PgxIface) *SessionRepo {
	return &SessionRepo{db: db}
}

const sessionColumns = `id, account_id, token_hash, fingerprint_hash, fingerprint,
		ip_address, user_agent, active, COALESCE(revoked_reason, ''),
		created_at, expires_at, last_activity_at`

// CreateWithCap serializes the count-evict-insert sequence per account: the
// account row lock makes concurrent creations queue up, so the cap can never
// be transiently exceeded. Eviction order is oldest created_at, id as the
// tie-break.
func (r *SessionRepo) CreateWithCap(ctx context.Context, session *domain.Session, cap int) (string, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("begin session tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SELECT 1 FROM accounts WHERE id = $1 FOR UPDATE`, session.AccountID); err != nil {
		return "", fmt.Errorf("lock account row: %w", err)
	}

	var liveCount int
	err = tx.QueryRow(ctx, `
		SELECT count(*) FROM sessions
		WHERE account_id = $1 AND active AND expires_at > now()
	`, session.AccountID).Scan(&liveCount)
	if err != nil {
		return "", fmt.Errorf("count live sessions: %w", err)
	}

	var evictedID string
	if liveCount >= cap {
		err = tx.QueryRow(ctx, `
			UPDATE sessions
			SET active = false, revoked_reason = $2
			WHERE id = (
				SELECT id FROM sessions
				WHERE account_id = $1 AND active AND expires_at > now()
				ORDER BY created_at ASC, id ASC
				LIMIT 1
			)
			RETURNING id
		`, session.AccountID, domain.RevokeReasonMaxSessions).Scan(&evictedID)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("evict oldest session: %w", err)
		}
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO sessions (id, account_id, token_hash, fingerprint_hash, fingerprint,
			ip_address, user_agent, active, created_at, expires_at, last_activity_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, session.ID, session.AccountID, session.TokenHash, session.FingerprintHash,
		session.Fingerprint, session.IPAddress, session.UserAgent, session.Active,
		session.CreatedAt, session.ExpiresAt, session.LastActivityAt)
	if err != nil {
		return "", fmt.Errorf("insert session: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("commit session tx: %w", err)
	}
	return evictedID, nil
}

func (r *SessionRepo) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1 LIMIT 1`
	return scanSessionRow(r.db.QueryRow(ctx, query, id))
}

func (r *SessionRepo) GetByTokenHash(ctx context.Context, tokenHash string) (*domain.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE token_hash = $1 LIMIT 1`
	return scanSessionRow(r.db.QueryRow(ctx, query, tokenHash))
}

func scanSessionRow(row pgx.Row) (*domain.Session, error) {
	var s domain.Session
	err := scanSessionInto(row, &s)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}
	return &s, nil
}

func scanSessionInto(row pgx.Row, s *domain.Session) error {
	return row.Scan(&s.ID, &s.AccountID, &s.TokenHash, &s.FingerprintHash, &s.Fingerprint,
		&s.IPAddress, &s.UserAgent, &s.Active, &s.RevokedReason,
		&s.CreatedAt, &s.ExpiresAt, &s.LastActivityAt)
}

func (r *SessionRepo) ListForAccount(ctx context.Context, accountID string, activeOnly bool) ([]domain.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE account_id = $1`
	if activeOnly {
		query += ` AND active AND expires_at > now()`
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []domain.Session
	for rows.Next() {
		var s domain.Session
		if err := scanSessionInto(rows, &s); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

func (r *SessionRepo) Revoke(ctx context.Context, id, reason string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE sessions SET active = false, revoked_reason = $2 WHERE id = $1
	`, id, reason)
	return err
}

func (r *SessionRepo) RevokeAllForAccount(ctx context.Context, accountID, exceptTokenHash, reason string) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE sessions
		SET active = false, revoked_reason = $3
		WHERE account_id = $1 AND active AND token_hash <> $2
	`, accountID, exceptTokenHash, reason)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// TouchActivity bumps last-activity only; expiry is never extended here.
func (r *SessionRepo) TouchActivity(ctx context.Context, tokenHash string, at time.Time) error {
	_, err := r.db.Exec(ctx, `
		UPDATE sessions SET last_activity_at = $2 WHERE token_hash = $1 AND active
	`, tokenHash, at)
	return err
}

func (r *SessionRepo) RotateToken(ctx context.Context, oldTokenHash, newTokenHash string, at time.Time) error {
	_, err := r.db.Exec(ctx, `
		UPDATE sessions SET token_hash = $2, last_activity_at = $3
		WHERE token_hash = $1 AND active
	`, oldTokenHash, newTokenHash, at)
	return err
}
