package service

import (
	"context"
	"fmt"
	"net/netip"
	"strings"

	"github.com/rs/zerolog"

	"github.com/danukusuma/auth-service/internal/audit"
	"github.com/danukusuma/auth-service/internal/auth/domain"
)

// NetworkPolicy evaluates per-account IP allowlists. Entries are exact
// addresses or CIDR ranges; an empty list means unrestricted.
type NetworkPolicy struct {
	accounts domain.AccountRepository
	audit    audit.Sink
	log      zerolog.Logger
}

func NewNetworkPolicy(accounts domain.AccountRepository, sink audit.Sink, log zerolog.Logger) *NetworkPolicy {
	return &NetworkPolicy{
		accounts: accounts,
		audit:    sink,
		log:      log.With().Str("component", "network_policy").Logger(),
	}
}

// IsAllowed treats a malformed origin as disallowed and a malformed allowlist
// entry as skippable: a bad row in the list must not lock everyone out, but a
// bad origin must not slip in.
func (p *NetworkPolicy) IsAllowed(account *domain.Account, originIP string) bool {
	if len(account.AllowedIPs) == 0 {
		return true
	}

	origin, err := netip.ParseAddr(strings.TrimSpace(originIP))
	if err != nil {
		p.log.Warn().Str("origin", originIP).Msg("malformed origin address rejected")
		return false
	}

	for _, entry := range account.AllowedIPs {
		entry = strings.TrimSpace(entry)
		if strings.Contains(entry, "/") {
			prefix, err := netip.ParsePrefix(entry)
			if err != nil {
				p.log.Warn().Str("entry", entry).Str("account_id", account.ID).Msg("skipping malformed allowlist entry")
				continue
			}
			if prefix.Contains(origin) {
				return true
			}
			continue
		}
		addr, err := netip.ParseAddr(entry)
		if err != nil {
			p.log.Warn().Str("entry", entry).Str("account_id", account.ID).Msg("skipping malformed allowlist entry")
			continue
		}
		if addr == origin {
			return true
		}
	}
	return false
}

// AddEntry validates and appends an allowlist entry. Adding an entry that is
// already present is a no-op success.
func (p *NetworkPolicy) AddEntry(ctx context.Context, account *domain.Account, entry, actorID string) error {
	entry = strings.TrimSpace(entry)
	if err := validateEntry(entry); err != nil {
		return err
	}
	for _, existing := range account.AllowedIPs {
		if existing == entry {
			return nil
		}
	}
	updated := append(append([]string{}, account.AllowedIPs...), entry)
	if err := p.accounts.SetAllowedIPs(ctx, account.ID, updated); err != nil {
		return fmt.Errorf("update allowlist: %w", err)
	}
	account.AllowedIPs = updated

	p.audit.Record(ctx, audit.Entry{
		AccountID:  actorID,
		Action:     "allowlist.add",
		Resource:   "account",
		ResourceID: account.ID,
		Details:    map[string]any{"entry": entry},
		Severity:   string(domain.SeverityInfo),
	})
	return nil
}

// RemoveEntry deletes an allowlist entry; removing a missing entry is a
// no-op success.
func (p *NetworkPolicy) RemoveEntry(ctx context.Context, account *domain.Account, entry, actorID string) error {
	entry = strings.TrimSpace(entry)
	updated := make([]string, 0, len(account.AllowedIPs))
	found := false
	for _, existing := range account.AllowedIPs {
		if existing == entry {
			found = true
			continue
		}
		updated = append(updated, existing)
	}
	if !found {
		return nil
	}
	if err := p.accounts.SetAllowedIPs(ctx, account.ID, updated); err != nil {
		return fmt.Errorf("update allowlist: %w", err)
	}
	account.AllowedIPs = updated

	p.audit.Record(ctx, audit.Entry{
		AccountID:  actorID,
		Action:     "allowlist.remove",
		Resource:   "account",
		ResourceID: account.ID,
		Details:    map[string]any{"entry": entry},
		Severity:   string(domain.SeverityInfo),
	})
	return nil
}

func validateEntry(entry string) error {
	if strings.Contains(entry, "/") {
		if _, err := netip.ParsePrefix(entry); err != nil {
			return fmt.Errorf("invalid CIDR entry %q: %w", entry, err)
		}
		return nil
	}
	if _, err := netip.ParseAddr(entry); err != nil {
		return fmt.Errorf("invalid address entry %q: %w", entry, err)
	}
	return nil
}
