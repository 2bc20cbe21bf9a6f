package domain

import "time"

// Clock is injected everywhere a timestamp is compared so lockout windows,
// token expiry and TOTP steps can be tested deterministically.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func SystemClock() Clock { return systemClock{} }
