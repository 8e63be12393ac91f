package grpc

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/stagekeeper/internal/common"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// toStatus maps the error taxonomy onto gRPC status codes.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	code := codes.Internal
	switch {
	case errors.Is(err, common.ErrInvalidArgument):
		code = codes.InvalidArgument
	case errors.Is(err, common.ErrAlreadyExists):
		code = codes.AlreadyExists
	case errors.Is(err, common.ErrorNotFound):
		code = codes.NotFound
	case errors.Is(err, common.ErrRelayFailed):
		code = codes.Unavailable
	case errors.Is(err, common.ErrorUnauthorized):
		code = codes.Unauthenticated
	case errors.Is(err, context.Canceled):
		code = codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	}
	msg := err.Error()
	if errors.Is(err, common.ErrIOFailure) {
		msg = common.IOFailureDetail
	}
	return status.Error(code, msg)
}
