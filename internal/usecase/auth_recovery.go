package usecase

import (
	"context"

	"servicehub/pkg/errors"
	"servicehub/pkg/logger"
)

// withAuthRecovery runs call and, when the store rejects the identity, refreshes
// the session and retries exactly once. A failed refresh or a second rejection
// is reported as SESSION_EXPIRED. Every other error is returned unchanged.
func withAuthRecovery[R any](ctx context.Context, auth *AuthUseCase, operation string, call func(context.Context) (R, error)) (R, error) {
	result, err := call(ctx)
	if err == nil || !errors.Is(err, errors.CodeAuthorizationExpired) {
		return result, err
	}

	var zero R
	logger.Warn("%s rejected by the store, refreshing session: %v", operation, err)
	if auth.RefreshAuth(ctx) == nil {
		auth.metrics.AuthRecovery(false)
		return zero, errors.SessionExpired(err)
	}

	result, err = call(ctx)
	if err != nil && isAuthClass(err) {
		auth.metrics.AuthRecovery(false)
		logger.Error("%s rejected again after refresh: %v", operation, err)
		return zero, errors.SessionExpired(err)
	}
	auth.metrics.AuthRecovery(true)
	return result, err
}

// recoverExec is withAuthRecovery for calls without a result.
func recoverExec(ctx context.Context, auth *AuthUseCase, operation string, call func(context.Context) error) error {
	_, err := withAuthRecovery(ctx, auth, operation, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, call(ctx)
	})
	return err
}
