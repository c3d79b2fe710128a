package authgate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/avoss-dev/authgate/account"
)

// Register creates an account and logs it in, returning the new user
// together with its first token pair.
func (e *Engine) Register(ctx context.Context, email, plainPassword string) (*User, *AuthTokens, error) {
	if err := e.checkOpen(); err != nil {
		return nil, nil, err
	}
	if err := e.allow(ctx, endpointRegister, ""); err != nil {
		e.metrics.Inc(MetricRegisterThrottled)
		return nil, nil, err
	}

	email = account.NormalizeEmail(email)
	if email == "" {
		return nil, nil, ErrInvalidCredentials
	}

	if violations := e.config.Policy.Check(plainPassword); len(violations) > 0 {
		err := &PasswordPolicyError{Violations: violations}
		e.emitAudit(ctx, auditEventRegisterFailure, false, "", "", err, func() map[string]string {
			return map[string]string{"email": email, "reason": "password_policy"}
		})
		return nil, nil, err
	}

	hash, err := e.hasher.Hash(plainPassword)
	if err != nil {
		return nil, nil, fmt.Errorf("hash password: %w", err)
	}

	now := time.Now().UTC()
	u := &account.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		Role:         account.RoleUser,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := e.accounts.Insert(ctx, u); err != nil {
		if errors.Is(err, account.ErrDuplicateEmail) {
			e.metrics.Inc(MetricRegisterDuplicate)
			e.emitAudit(ctx, auditEventRegisterDuplicate, false, "", "", ErrAccountExists, func() map[string]string {
				return map[string]string{"email": email}
			})
			return nil, nil, ErrAccountExists
		}
		return nil, nil, fmt.Errorf("create account: %w", err)
	}

	pair, rec, err := e.issueTokens(ctx, u, "")
	if err != nil {
		return nil, nil, err
	}

	e.metrics.Inc(MetricRegisterSuccess)
	e.emitAudit(ctx, auditEventRegisterSuccess, true, u.ID, rec.FamilyID, nil, nil)
	return projectUser(u), pair, nil
}

// Login verifies credentials and starts a new token family. The unknown
// email and wrong password cases are indistinguishable to the caller,
// and both cost a full hash verification.
func (e *Engine) Login(ctx context.Context, email, plainPassword string) (*User, *AuthTokens, error) {
	if err := e.checkOpen(); err != nil {
		return nil, nil, err
	}

	email = account.NormalizeEmail(email)
	if err := e.allow(ctx, endpointLogin, email); err != nil {
		e.metrics.Inc(MetricLoginThrottled)
		return nil, nil, err
	}
	if err := e.checkDelay(ctx); err != nil {
		e.metrics.Inc(MetricLoginThrottled)
		return nil, nil, err
	}

	u, lookupErr := e.accounts.GetByEmail(ctx, email)
	if lookupErr != nil {
		if !errors.Is(lookupErr, account.ErrNotFound) {
			return nil, nil, fmt.Errorf("lookup account: %w", lookupErr)
		}
		// Burn a verification anyway so this path is not measurably
		// faster than a wrong password.
		_, _ = e.hasher.Verify(plainPassword, e.dummyHash)
		return nil, nil, e.failLogin(ctx, "", email, "unknown_email")
	}

	ok, err := e.hasher.Verify(plainPassword, u.PasswordHash)
	if err != nil || !ok {
		return nil, nil, e.failLogin(ctx, u.ID, email, "password_mismatch")
	}

	if !u.Active {
		e.metrics.Inc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, u.ID, "", ErrAccountDisabled, func() map[string]string {
			return map[string]string{"email": email, "reason": "account_disabled"}
		})
		return nil, nil, ErrAccountDisabled
	}

	e.resetFailures(ctx)

	pair, rec, err := e.issueTokens(ctx, u, "")
	if err != nil {
		return nil, nil, err
	}

	e.metrics.Inc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, u.ID, rec.FamilyID, nil, nil)
	return projectUser(u), pair, nil
}

// failLogin records a credential failure for the progressive delay and
// returns the uniform error.
func (e *Engine) failLogin(ctx context.Context, userID, email, reason string) error {
	e.recordFailure(ctx)
	e.metrics.Inc(MetricLoginFailure)
	e.emitAudit(ctx, auditEventLoginFailure, false, userID, "", ErrInvalidCredentials, func() map[string]string {
		return map[string]string{"email": email, "reason": reason}
	})
	return ErrInvalidCredentials
}
