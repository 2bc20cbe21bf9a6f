package service

import (
	"testing"
	"time"

	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	autherror "github.com/danukusuma/auth-service/internal/errors"
)

func TestChallengeStoreTake(t *testing.T) {
	clock := newFakeClock(time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC))
	store := NewChallengeStore(5*time.Minute, clock)

	session := webauthn.SessionData{Challenge: "challenge-data", UserID: []byte("acc-1")}
	id := store.Put("acc-1", session)
	require.NotEmpty(t, id)
	assert.Equal(t, 1, store.Len())

	got, err := store.Take(id, "acc-1")
	require.NoError(t, err)
	assert.Equal(t, session.Challenge, got.Challenge)
	assert.Equal(t, 0, store.Len())

	// Single use: the same id never works twice.
	_, err = store.Take(id, "acc-1")
	assert.ErrorIs(t, err, autherror.ErrChallengeInvalid)
}

func TestChallengeStoreAccountMismatch(t *testing.T) {
	clock := newFakeClock(time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC))
	store := NewChallengeStore(5*time.Minute, clock)

	id := store.Put("acc-1", webauthn.SessionData{Challenge: "c"})

	_, err := store.Take(id, "acc-2")
	assert.ErrorIs(t, err, autherror.ErrChallengeInvalid)

	// The mismatch burned the challenge for the owner too.
	_, err = store.Take(id, "acc-1")
	assert.ErrorIs(t, err, autherror.ErrChallengeInvalid)
}

func TestChallengeStoreExpiry(t *testing.T) {
	clock := newFakeClock(time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC))
	store := NewChallengeStore(5*time.Minute, clock)

	id := store.Put("acc-1", webauthn.SessionData{Challenge: "c"})

	clock.Advance(5*time.Minute + time.Second)
	_, err := store.Take(id, "acc-1")
	assert.ErrorIs(t, err, autherror.ErrChallengeInvalid)
}

func TestChallengeStoreUnknownID(t *testing.T) {
	store := NewChallengeStore(5*time.Minute, newFakeClock(time.Now()))

	_, err := store.Take("no-such-id", "acc-1")
	assert.ErrorIs(t, err, autherror.ErrChallengeInvalid)
}

func TestChallengeStoreSweep(t *testing.T) {
	clock := newFakeClock(time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC))
	store := NewChallengeStore(5*time.Minute, clock)

	store.Put("acc-1", webauthn.SessionData{Challenge: "old"})
	clock.Advance(4 * time.Minute)
	fresh := store.Put("acc-1", webauthn.SessionData{Challenge: "fresh"})

	clock.Advance(2 * time.Minute)
	assert.Equal(t, 1, store.SweepExpired())
	assert.Equal(t, 1, store.Len())

	got, err := store.Take(fresh, "acc-1")
	require.NoError(t, err)
	assert.Equal(t, "fresh", got.Challenge)
}
