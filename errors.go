package authgate

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrInvalidCredentials is returned for an unknown email or a wrong
	// password. The two cases are deliberately indistinguishable.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountExists is returned when registration hits an email that
	// already has an account.
	ErrAccountExists = errors.New("account already exists")
	// ErrAccountDisabled is returned when the account is deactivated.
	ErrAccountDisabled = errors.New("account disabled")
	// ErrUserNotFound is returned by administrative operations that
	// target a missing account.
	ErrUserNotFound = errors.New("user not found")
	// ErrRoleInvalid is returned for a role outside the known set.
	ErrRoleInvalid = errors.New("invalid account role")
	// ErrTokenInvalid is returned for a bearer that is malformed or
	// matches no stored record.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrTokenExpired is returned for a bearer past its expiry.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenRevoked is returned for a bearer revoked by logout or a
	// prior family revocation.
	ErrTokenRevoked = errors.New("token revoked")
	// ErrTokenReuse is returned when a rotated-out refresh token is
	// presented again. Its whole family has been revoked by the time the
	// error is returned.
	ErrTokenReuse = errors.New("refresh token reuse detected")
	// ErrRateLimited is the match target for ThrottledError.
	ErrRateLimited = errors.New("rate limited")
	// ErrPasswordPolicy is the match target for PasswordPolicyError.
	ErrPasswordPolicy = errors.New("password policy violation")
	// ErrEngineClosed is returned by operations on a closed engine.
	ErrEngineClosed = errors.New("engine closed")
)

// ThrottledError reports a blocked attempt together with how long the
// caller must wait. errors.Is(err, ErrRateLimited) matches it.
type ThrottledError struct {
	RetryAfter time.Duration
}

func (e *ThrottledError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

func (e *ThrottledError) Unwrap() error { return ErrRateLimited }

// PasswordPolicyError carries every policy violation of a rejected
// password. errors.Is(err, ErrPasswordPolicy) matches it.
type PasswordPolicyError struct {
	Violations []string
}

func (e *PasswordPolicyError) Error() string {
	return "password policy violation: " + strings.Join(e.Violations, "; ")
}

func (e *PasswordPolicyError) Unwrap() error { return ErrPasswordPolicy }
