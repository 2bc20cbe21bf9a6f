// Package postgres implements the domain repository interfaces on pgx. Writes
// that carry per-account invariants (failed-attempt counting, the session
// cap) are single statements or single transactions so they stay correct
// under concurrent requests.
package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PgxIface is the slice of pgxpool.Pool the repositories need; pgxmock
// satisfies it in tests.
type PgxIface interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repositories bundles every per-concern repository over one pool.
type Repositories struct {
	Accounts *AccountRepo
	Tokens   *TokenRepo
	Sessions *SessionRepo
	Security *SecurityRepo
	WebAuthn *WebAuthnRepo
}

func New(db PgxIface) *Repositories {
	return &Repositories{
		Accounts: NewAccountRepo(db),
		Tokens:   NewTokenRepo(db),
		Sessions: NewSessionRepo(db),
		Security: NewSecurityRepo(db),
		WebAuthn: NewWebAuthnRepo(db),
	}
}
