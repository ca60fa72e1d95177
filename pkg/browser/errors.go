package browser

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrSessionNotFound is returned for operations against an unknown key.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionBusy rejects a second operation while one is in flight.
	ErrSessionBusy = errors.New("session busy")

	// ErrSessionClosed is observed by operations racing a close.
	ErrSessionClosed = errors.New("session closed")

	// ErrConcurrentCreation rejects a duplicate non-blocking create while a
	// creation for the same key is already in progress.
	ErrConcurrentCreation = errors.New("session creation already in progress")

	// ErrTwoFactorRequired means the site prompted for a code but no TOTP
	// seed was supplied with the credentials.
	ErrTwoFactorRequired = errors.New("two-factor code required, no seed provided")

	// ErrNoAuthMaterial means neither cookies nor credentials were supplied.
	ErrNoAuthMaterial = errors.New("no cookies or credentials provided")
)

// AuthError reports a failed login with its classified outcome, so the
// caller can persist the terminal state and the diagnostic screenshot.
type AuthError struct {
	Key     SessionKey
	Outcome LoginOutcome
	Err     error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("login failed for %s: %v", e.Key, e.Err)
	}
	return fmt.Sprintf("login failed for %s: %s (%s)", e.Key, e.Outcome.State, e.Outcome.Message)
}

func (e *AuthError) Unwrap() error { return e.Err }

// ProxyError indicates the driver could not establish a connection through
// the configured proxy.
type ProxyError struct {
	Server string
	Err    error
}

func (e *ProxyError) Error() string {
	return fmt.Sprintf("proxy %s unreachable: %v", e.Server, e.Err)
}

func (e *ProxyError) Unwrap() error { return e.Err }

// TimeoutError means an expected page signal never appeared within the bound.
type TimeoutError struct {
	Op    string
	Bound time.Duration
	Err   error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: no signal within %s", e.Op, e.Bound)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// TeardownError means the driver did not quit cleanly within the grace
// period. The handle is abandoned, never left blocking the caller.
type TeardownError struct {
	Key SessionKey
	Err error
}

func (e *TeardownError) Error() string {
	return fmt.Sprintf("driver teardown for %s did not complete cleanly: %v", e.Key, e.Err)
}

func (e *TeardownError) Unwrap() error { return e.Err }

// IsTimeout reports whether err is a wait-bound expiry.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}
