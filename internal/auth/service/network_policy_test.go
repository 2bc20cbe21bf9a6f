package service_test

import (
	"context"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danukusuma/auth-service/internal/audit"
	"github.com/danukusuma/auth-service/internal/auth/domain"
	"github.com/danukusuma/auth-service/internal/auth/service"
	"github.com/danukusuma/auth-service/internal/mocks"
)

func newTestNetworkPolicy(t *testing.T) (*service.NetworkPolicy, *mocks.MockAccountRepository) {
	t.Helper()
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)
	accounts := mocks.NewMockAccountRepository(ctrl)
	return service.NewNetworkPolicy(accounts, audit.NopSink{}, zerolog.Nop()), accounts
}

func TestNetworkPolicyIsAllowed(t *testing.T) {
	policy, _ := newTestNetworkPolicy(t)

	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{"empty list is unrestricted", nil, "198.51.100.7", true},
		{"exact match", []string{"198.51.100.7"}, "198.51.100.7", true},
		{"exact mismatch", []string{"198.51.100.7"}, "198.51.100.8", false},
		{"cidr contains", []string{"10.0.0.0/24"}, "10.0.0.5", true},
		{"cidr excludes", []string{"10.0.0.0/24"}, "10.0.1.5", false},
		{"second entry matches", []string{"203.0.113.1", "10.0.0.0/8"}, "10.200.3.4", true},
		{"malformed origin rejected", []string{"10.0.0.0/8"}, "not-an-ip", false},
		{"malformed entry skipped", []string{"garbage", "198.51.100.7"}, "198.51.100.7", true},
		{"whitespace tolerated", []string{" 198.51.100.7 "}, " 198.51.100.7", true},
		{"ipv6 exact match", []string{"2001:db8::1"}, "2001:db8::1", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			account := &domain.Account{ID: "acc-1", AllowedIPs: tt.allowed}
			assert.Equal(t, tt.want, policy.IsAllowed(account, tt.origin))
		})
	}
}

func TestNetworkPolicyAddEntry(t *testing.T) {
	t.Run("appends and persists", func(t *testing.T) {
		policy, accounts := newTestNetworkPolicy(t)
		account := &domain.Account{ID: "acc-1", AllowedIPs: []string{"198.51.100.7"}}

		accounts.EXPECT().
			SetAllowedIPs(gomock.Any(), "acc-1", []string{"198.51.100.7", "10.0.0.0/24"}).
			Return(nil)

		require.NoError(t, policy.AddEntry(context.Background(), account, "10.0.0.0/24", "acc-1"))
		assert.Equal(t, []string{"198.51.100.7", "10.0.0.0/24"}, account.AllowedIPs)
	})

	t.Run("duplicate is a no-op", func(t *testing.T) {
		policy, _ := newTestNetworkPolicy(t)
		account := &domain.Account{ID: "acc-1", AllowedIPs: []string{"198.51.100.7"}}

		require.NoError(t, policy.AddEntry(context.Background(), account, "198.51.100.7", "acc-1"))
		assert.Len(t, account.AllowedIPs, 1)
	})

	t.Run("rejects malformed entries", func(t *testing.T) {
		policy, _ := newTestNetworkPolicy(t)
		account := &domain.Account{ID: "acc-1"}

		assert.Error(t, policy.AddEntry(context.Background(), account, "not-an-ip", "acc-1"))
		assert.Error(t, policy.AddEntry(context.Background(), account, "10.0.0.0/99", "acc-1"))
		assert.Empty(t, account.AllowedIPs)
	})
}

func TestNetworkPolicyRemoveEntry(t *testing.T) {
	t.Run("removes and persists", func(t *testing.T) {
		policy, accounts := newTestNetworkPolicy(t)
		account := &domain.Account{ID: "acc-1", AllowedIPs: []string{"198.51.100.7", "10.0.0.0/24"}}

		accounts.EXPECT().
			SetAllowedIPs(gomock.Any(), "acc-1", []string{"198.51.100.7"}).
			Return(nil)

		require.NoError(t, policy.RemoveEntry(context.Background(), account, "10.0.0.0/24", "acc-1"))
		assert.Equal(t, []string{"198.51.100.7"}, account.AllowedIPs)
	})

	t.Run("missing entry is a no-op", func(t *testing.T) {
		policy, _ := newTestNetworkPolicy(t)
		account := &domain.Account{ID: "acc-1", AllowedIPs: []string{"198.51.100.7"}}

		require.NoError(t, policy.RemoveEntry(context.Background(), account, "203.0.113.1", "acc-1"))
		assert.Equal(t, []string{"198.51.100.7"}, account.AllowedIPs)
	})
}
