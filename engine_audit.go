package authgate

import (
	"context"
	"errors"
	"time"
)

const (
	auditEventRegisterSuccess   = "register_success"
	auditEventRegisterDuplicate = "register_duplicate"
	auditEventRegisterFailure   = "register_failure"
	auditEventLoginSuccess      = "login_success"
	auditEventLoginFailure      = "login_failure"
	auditEventRefreshSuccess    = "refresh_success"
	auditEventRefreshInvalid    = "refresh_invalid"
	auditEventReuseDetected     = "refresh_reuse_detected"
	auditEventFamilyRevoked     = "token_family_revoked"
	auditEventLogout            = "logout"
	auditEventLogoutAll         = "logout_all"
	auditEventThrottled         = "rate_limit_triggered"
	auditEventThrottleFailOpen  = "throttle_fail_open"
	auditEventRoleChanged       = "account_role_changed"
	auditEventStatusChanged     = "account_status_changed"
	auditEventSweep             = "token_sweep"
)

// AuditErrorCode is the normalized error tag carried on audit events.
type AuditErrorCode string

const (
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrRateLimited        AuditErrorCode = "rate_limited"
	auditErrReuse              AuditErrorCode = "token_reuse"
	auditErrInvalidToken       AuditErrorCode = "invalid_token"
	auditErrTokenExpired       AuditErrorCode = "token_expired"
	auditErrTokenRevoked       AuditErrorCode = "token_revoked"
	auditErrUserNotFound       AuditErrorCode = "user_not_found"
	auditErrAccountDisabled    AuditErrorCode = "account_disabled"
	auditErrPasswordPolicy     AuditErrorCode = "password_policy"
	auditErrDuplicate          AuditErrorCode = "duplicate"
	auditErrRoleInvalid        AuditErrorCode = "role_invalid"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	familyID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		UserID:    userID,
		FamilyID:  familyID,
		IP:        clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

// emitThrottled records a blocked attempt, tagged with which limiter
// fired.
func (e *Engine) emitThrottled(ctx context.Context, scope string, retryAfter time.Duration) {
	e.emitAudit(ctx, auditEventThrottled, false, "", "", ErrRateLimited, func() map[string]string {
		return map[string]string{
			"scope":       scope,
			"retry_after": retryAfter.String(),
		}
	})
}

// emitFailOpen records that a throttle decision was allowed because the
// throttle store was unreachable.
func (e *Engine) emitFailOpen(ctx context.Context, scope string, cause error) {
	e.metrics.Inc(MetricThrottleFailOpen)
	e.emitAudit(ctx, auditEventThrottleFailOpen, false, "", "", nil, func() map[string]string {
		return map[string]string{
			"scope": scope,
			"cause": cause.Error(),
		}
	})
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrTokenReuse):
		return auditErrReuse
	case errors.Is(err, ErrTokenExpired):
		return auditErrTokenExpired
	case errors.Is(err, ErrTokenRevoked):
		return auditErrTokenRevoked
	case errors.Is(err, ErrTokenInvalid):
		return auditErrInvalidToken
	case errors.Is(err, ErrUserNotFound):
		return auditErrUserNotFound
	case errors.Is(err, ErrAccountDisabled):
		return auditErrAccountDisabled
	case errors.Is(err, ErrPasswordPolicy):
		return auditErrPasswordPolicy
	case errors.Is(err, ErrAccountExists):
		return auditErrDuplicate
	case errors.Is(err, ErrRoleInvalid):
		return auditErrRoleInvalid
	default:
		return auditErrInternal
	}
}
