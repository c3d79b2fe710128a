package authgate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avoss-dev/authgate/account"
	"github.com/avoss-dev/authgate/jwt"
	"github.com/avoss-dev/authgate/token"
)

// Refresh rotates a refresh token: the presented bearer is revoked and a
// new pair is returned, in the same family. Presenting a bearer that was
// already rotated out revokes its whole family and returns ErrTokenReuse.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*AuthTokens, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	if err := e.allow(ctx, endpointRefresh, ""); err != nil {
		return nil, err
	}

	start := time.Now()
	newBearer, v, err := e.tokens.Rotate(ctx, refreshToken)
	if err != nil {
		return nil, e.failRefresh(ctx, err)
	}

	access, err := e.jwtManager.CreateAccess(v.Owner.ID, v.Owner.Email, string(v.Owner.Role))
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	e.metrics.Inc(MetricRefreshSuccess)
	e.metrics.Observe(MetricRefreshLatency, time.Since(start))
	e.emitAudit(ctx, auditEventRefreshSuccess, true, v.Owner.ID, v.Record.FamilyID, nil, nil)

	return &AuthTokens{
		AccessToken:      access,
		RefreshToken:     newBearer,
		AccessExpiresIn:  e.config.JWT.AccessTTL,
		RefreshExpiresAt: v.Record.ExpiresAt,
	}, nil
}

func (e *Engine) failRefresh(ctx context.Context, cause error) error {
	mapped := mapTokenErr(cause)

	if errors.Is(mapped, ErrTokenReuse) {
		e.metrics.Inc(MetricRefreshReuseDetected)
		e.metrics.Inc(MetricFamilyRevoked)
		e.emitAudit(ctx, auditEventReuseDetected, false, "", "", mapped, nil)
		e.emitAudit(ctx, auditEventFamilyRevoked, false, "", "", mapped, func() map[string]string {
			return map[string]string{"trigger": "reuse"}
		})
		return mapped
	}

	e.metrics.Inc(MetricRefreshFailure)
	e.emitAudit(ctx, auditEventRefreshInvalid, false, "", "", mapped, nil)
	return mapped
}

// ValidateAccess verifies an access token with signature and expiry
// alone. No store round trip happens; revocation only cuts off the
// refresh path, access tokens simply age out.
func (e *Engine) ValidateAccess(ctx context.Context, accessToken string) (*Identity, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	claims, err := e.jwtManager.ParseAccess(accessToken)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	return &Identity{
		UserID: claims.UID,
		Email:  claims.Email,
		Role:   account.Role(claims.Role),
	}, nil
}

// Logout revokes the presented refresh token. Logging out with a token
// that is already revoked or unknown succeeds; the session is gone
// either way.
func (e *Engine) Logout(ctx context.Context, refreshToken string) error {
	if err := e.checkOpen(); err != nil {
		return err
	}
	ok, err := e.tokens.RevokeSingle(ctx, refreshToken, token.ReasonLogout)
	if err != nil {
		if errors.Is(err, token.ErrMalformed) {
			return ErrTokenInvalid
		}
		return fmt.Errorf("logout: %w", err)
	}
	e.metrics.Inc(MetricLogout)
	e.emitAudit(ctx, auditEventLogout, true, "", "", nil, func() map[string]string {
		return map[string]string{"revoked": fmt.Sprintf("%t", ok)}
	})
	return nil
}

// LogoutAllByAccessToken revokes every session of the caller identified
// by a live access token. A refresh token is not accepted here; ending
// all sessions requires proof of an authenticated session, not just
// possession of a refresh bearer.
func (e *Engine) LogoutAllByAccessToken(ctx context.Context, accessToken string) error {
	id, err := e.ValidateAccess(ctx, accessToken)
	if err != nil {
		return err
	}
	return e.LogoutAll(ctx, id.UserID)
}

// LogoutAll revokes every refresh token the user holds, across all
// families and devices. This is the administrative entry point; callers
// acting on their own behalf go through LogoutAllByAccessToken.
func (e *Engine) LogoutAll(ctx context.Context, userID string) error {
	if err := e.checkOpen(); err != nil {
		return err
	}
	n, err := e.tokens.RevokeAllForUser(ctx, userID, token.ReasonLogout)
	if err != nil {
		return fmt.Errorf("logout all: %w", err)
	}
	e.metrics.Inc(MetricLogoutAll)
	e.emitAudit(ctx, auditEventLogoutAll, true, userID, "", nil, func() map[string]string {
		return map[string]string{"revoked": fmt.Sprintf("%d", n)}
	})
	return nil
}
