package service

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/danukusuma/auth-service/internal/audit"
	"github.com/danukusuma/auth-service/internal/auth/domain"
	autherror "github.com/danukusuma/auth-service/internal/errors"
)

// WebAuthnService runs FIDO2 registration and authentication ceremonies.
// Challenges live in the in-process store; credentials are durable rows.
type WebAuthnService struct {
	wa         *webauthn.WebAuthn
	creds      domain.WebAuthnRepository
	security   domain.SecurityRepository
	audit      audit.Sink
	challenges *ChallengeStore
	clock      domain.Clock
	log        zerolog.Logger
}

func NewWebAuthnService(rpDisplayName, rpID, rpOrigin string, creds domain.WebAuthnRepository,
	security domain.SecurityRepository, sink audit.Sink, challenges *ChallengeStore,
	clock domain.Clock, log zerolog.Logger) (*WebAuthnService, error) {
	wa, err := webauthn.New(&webauthn.Config{
		RPDisplayName: rpDisplayName,
		RPID:          rpID,
		RPOrigins:     []string{rpOrigin},
	})
	if err != nil {
		return nil, fmt.Errorf("configure webauthn: %w", err)
	}
	return &WebAuthnService{
		wa:         wa,
		creds:      creds,
		security:   security,
		audit:      sink,
		challenges: challenges,
		clock:      clock,
		log:        log.With().Str("component", "webauthn").Logger(),
	}, nil
}

// webAuthnUser adapts an Account plus its stored credentials to the library's
// user contract.
type webAuthnUser struct {
	account *domain.Account
	creds   []domain.WebAuthnCredential
}

func (u *webAuthnUser) WebAuthnID() []byte          { return []byte(u.account.ID) }
func (u *webAuthnUser) WebAuthnName() string        { return u.account.Email }
func (u *webAuthnUser) WebAuthnDisplayName() string { return u.account.Email }
func (u *webAuthnUser) WebAuthnIcon() string        { return "" }

func (u *webAuthnUser) WebAuthnCredentials() []webauthn.Credential {
	out := make([]webauthn.Credential, 0, len(u.creds))
	for _, c := range u.creds {
		if !c.Active {
			continue
		}
		transports := make([]protocol.AuthenticatorTransport, 0, len(c.Transports))
		for _, t := range c.Transports {
			transports = append(transports, protocol.AuthenticatorTransport(t))
		}
		out = append(out, webauthn.Credential{
			ID:        c.CredentialID,
			PublicKey: c.PublicKey,
			Transport: transports,
			Authenticator: webauthn.Authenticator{
				SignCount: c.SignCount,
			},
		})
	}
	return out
}

// BeginRegistration issues a challenge bound to the account. Credentials the
// account already owns are excluded so the same key cannot register twice.
func (s *WebAuthnService) BeginRegistration(ctx context.Context, account *domain.Account) (*protocol.CredentialCreation, string, error) {
	stored, err := s.creds.CredentialsForAccount(ctx, account.ID)
	if err != nil {
		return nil, "", fmt.Errorf("load credentials: %w", err)
	}

	exclusions := make([]protocol.CredentialDescriptor, 0, len(stored))
	for _, c := range stored {
		exclusions = append(exclusions, protocol.CredentialDescriptor{
			Type:         protocol.PublicKeyCredentialType,
			CredentialID: c.CredentialID,
		})
	}

	user := &webAuthnUser{account: account, creds: stored}
	creation, session, err := s.wa.BeginRegistration(user, webauthn.WithExclusions(exclusions))
	if err != nil {
		return nil, "", fmt.Errorf("begin registration: %w", err)
	}

	challengeID := s.challenges.Put(account.ID, *session)
	return creation, challengeID, nil
}

// FinishRegistration consumes the challenge and persists the new credential.
// Any rejection burns the challenge; the client must begin a fresh ceremony.
func (s *WebAuthnService) FinishRegistration(ctx context.Context, account *domain.Account,
	challengeID, label string, response io.Reader) (*domain.WebAuthnCredential, error) {
	session, err := s.challenges.Take(challengeID, account.ID)
	if err != nil {
		return nil, err
	}

	parsed, err := protocol.ParseCredentialCreationResponseBody(response)
	if err != nil {
		return nil, autherror.ErrChallengeInvalid
	}

	stored, err := s.creds.CredentialsForAccount(ctx, account.ID)
	if err != nil {
		return nil, fmt.Errorf("load credentials: %w", err)
	}
	user := &webAuthnUser{account: account, creds: stored}

	cred, err := s.wa.CreateCredential(user, *session, parsed)
	if err != nil {
		s.log.Warn().Err(err).Str("account_id", account.ID).Msg("registration ceremony rejected")
		return nil, autherror.ErrChallengeInvalid
	}

	// The exclude list keeps honest clients away; a replayed response could
	// still carry a known id, so check against storage too.
	for _, existing := range stored {
		if bytes.Equal(existing.CredentialID, cred.ID) {
			return nil, autherror.ErrCredentialExists
		}
	}

	transports := make([]string, 0, len(cred.Transport))
	for _, t := range cred.Transport {
		transports = append(transports, string(t))
	}
	record := &domain.WebAuthnCredential{
		ID:           uuid.NewString(),
		AccountID:    account.ID,
		CredentialID: cred.ID,
		PublicKey:    cred.PublicKey,
		SignCount:    cred.Authenticator.SignCount,
		Label:        label,
		Transports:   transports,
		Active:       true,
		CreatedAt:    s.clock.Now(),
	}
	if err := s.creds.CreateCredential(ctx, record); err != nil {
		return nil, fmt.Errorf("store credential: %w", err)
	}

	s.audit.Record(ctx, audit.Entry{
		AccountID:  account.ID,
		Action:     "webauthn.register",
		Resource:   "webauthn_credential",
		ResourceID: record.ID,
		Details:    map[string]any{"label": label},
		Severity:   string(domain.SeverityInfo),
	})
	return record, nil
}

// BeginLogin issues an authentication challenge over the account's active
// credentials.
func (s *WebAuthnService) BeginLogin(ctx context.Context, account *domain.Account) (*protocol.CredentialAssertion, string, error) {
	stored, err := s.creds.CredentialsForAccount(ctx, account.ID)
	if err != nil {
		return nil, "", fmt.Errorf("load credentials: %w", err)
	}
	user := &webAuthnUser{account: account, creds: stored}

	assertion, session, err := s.wa.BeginLogin(user)
	if err != nil {
		return nil, "", fmt.Errorf("begin login: %w", err)
	}

	challengeID := s.challenges.Put(account.ID, *session)
	return assertion, challengeID, nil
}

// FinishLogin validates the assertion. The signature counter must strictly
// increase; a regression means a cloned authenticator, so the ceremony fails
// hard and a critical alert is raised instead of silently succeeding.
func (s *WebAuthnService) FinishLogin(ctx context.Context, account *domain.Account,
	challengeID string, response io.Reader) (*domain.WebAuthnCredential, error) {
	session, err := s.challenges.Take(challengeID, account.ID)
	if err != nil {
		return nil, err
	}

	parsed, err := protocol.ParseCredentialRequestResponseBody(response)
	if err != nil {
		return nil, autherror.ErrChallengeInvalid
	}

	stored, err := s.creds.CredentialsForAccount(ctx, account.ID)
	if err != nil {
		return nil, fmt.Errorf("load credentials: %w", err)
	}
	user := &webAuthnUser{account: account, creds: stored}

	validated, err := s.wa.ValidateLogin(user, *session, parsed)
	if err != nil {
		s.log.Warn().Err(err).Str("account_id", account.ID).Msg("authentication ceremony rejected")
		return nil, autherror.ErrChallengeInvalid
	}

	var matched *domain.WebAuthnCredential
	for i := range stored {
		if bytes.Equal(stored[i].CredentialID, validated.ID) {
			matched = &stored[i]
			break
		}
	}
	if matched == nil || !matched.Active {
		return nil, autherror.ErrChallengeInvalid
	}

	if validated.Authenticator.CloneWarning || validated.Authenticator.SignCount <= matched.SignCount {
		s.raiseCloneAlert(ctx, account, matched, validated.Authenticator.SignCount)
		return nil, autherror.ErrCounterRegression
	}

	now := s.clock.Now()
	if err := s.creds.UpdateSignCount(ctx, matched.ID, validated.Authenticator.SignCount, now); err != nil {
		return nil, fmt.Errorf("update sign count: %w", err)
	}
	matched.SignCount = validated.Authenticator.SignCount
	matched.LastUsedAt = &now
	return matched, nil
}

// DeactivateCredential soft-disables a registered key.
func (s *WebAuthnService) DeactivateCredential(ctx context.Context, accountID, credentialID, actorID string) error {
	if err := s.creds.DeactivateCredential(ctx, accountID, credentialID); err != nil {
		return err
	}
	s.audit.Record(ctx, audit.Entry{
		AccountID:  actorID,
		Action:     "webauthn.deactivate",
		Resource:   "webauthn_credential",
		ResourceID: credentialID,
		Severity:   string(domain.SeverityInfo),
	})
	return nil
}

func (s *WebAuthnService) ListCredentials(ctx context.Context, accountID string) ([]domain.WebAuthnCredential, error) {
	return s.creds.CredentialsForAccount(ctx, accountID)
}

func (s *WebAuthnService) raiseCloneAlert(ctx context.Context, account *domain.Account,
	cred *domain.WebAuthnCredential, reportedCount uint32) {
	alert := &domain.SecurityAlert{
		ID:        uuid.NewString(),
		AccountID: account.ID,
		Type:      domain.AlertClonedAuth,
		Severity:  domain.SeverityCritical,
		Details: map[string]any{
			"credential_id":  cred.ID,
			"stored_count":   cred.SignCount,
			"reported_count": reportedCount,
		},
		CreatedAt: s.clock.Now(),
	}
	if err := s.security.CreateAlert(ctx, alert); err != nil {
		s.log.Error().Err(err).Str("account_id", account.ID).Msg("persist clone alert failed")
	}
	s.audit.Record(ctx, audit.Entry{
		AccountID:  account.ID,
		Action:     "webauthn.counter_regression",
		Resource:   "webauthn_credential",
		ResourceID: cred.ID,
		Details:    alert.Details,
		Severity:   string(domain.SeverityCritical),
	})
}
