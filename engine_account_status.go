package authgate

import (
	"context"
	"errors"
	"fmt"

	"github.com/avoss-dev/authgate/account"
	"github.com/avoss-dev/authgate/token"
)

// SetUserRole changes an account's role. Outstanding access tokens keep
// their old role claim until they expire; the change takes effect on the
// next refresh.
func (e *Engine) SetUserRole(ctx context.Context, userID string, role account.Role) error {
	if err := e.checkOpen(); err != nil {
		return err
	}
	if !role.Valid() {
		return ErrRoleInvalid
	}
	if err := e.accounts.UpdateRole(ctx, userID, role); err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("update role: %w", err)
	}
	e.emitAudit(ctx, auditEventRoleChanged, true, userID, "", nil, func() map[string]string {
		return map[string]string{"role": string(role)}
	})
	return nil
}

// SetUserActive activates or deactivates an account. Deactivation also
// revokes every refresh token the user holds, so the lockout is complete
// once the current access tokens age out.
func (e *Engine) SetUserActive(ctx context.Context, userID string, active bool) error {
	if err := e.checkOpen(); err != nil {
		return err
	}
	if err := e.accounts.SetActive(ctx, userID, active); err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("set active: %w", err)
	}
	if !active {
		if _, err := e.tokens.RevokeAllForUser(ctx, userID, token.ReasonLogout); err != nil {
			return fmt.Errorf("revoke tokens on deactivation: %w", err)
		}
	}
	e.emitAudit(ctx, auditEventStatusChanged, true, userID, "", nil, func() map[string]string {
		return map[string]string{"active": fmt.Sprintf("%t", active)}
	})
	return nil
}

// GetUser returns the public projection of one account.
func (e *Engine) GetUser(ctx context.Context, userID string) (*User, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	u, err := e.accounts.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("lookup account: %w", err)
	}
	return projectUser(u), nil
}
