package repository

import (
	"context"
	stderrors "errors"
	"net"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"servicehub/pkg/errors"
)

// classifyStoreError maps a document store failure onto the AppError taxonomy.
func classifyStoreError(err error, resource string) error {
	if err == nil {
		return nil
	}

	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}

	if stderrors.Is(err, context.DeadlineExceeded) {
		return errors.Network("Request to document store timed out", err)
	}

	var netErr net.Error
	if stderrors.As(err, &netErr) {
		return errors.Network("Document store unreachable", err)
	}

	switch status.Code(err) {
	case codes.Unauthenticated, codes.PermissionDenied:
		return errors.AuthorizationExpired("Document store rejected the request", err)
	case codes.NotFound:
		return errors.NotFound(resource, err)
	case codes.Unavailable, codes.DeadlineExceeded:
		return errors.Network("Document store unavailable", err)
	case codes.InvalidArgument, codes.FailedPrecondition:
		if st, ok := status.FromError(err); ok {
			return errors.BadRequest(st.Message(), err)
		}
	}

	return errors.Unknown(err)
}
