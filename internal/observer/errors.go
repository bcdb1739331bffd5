package observer

import (
	"context"
	"errors"

	"github.com/signalsfoundry/amoebot-simulator/core"
	"github.com/signalsfoundry/amoebot-simulator/history"
	"github.com/signalsfoundry/amoebot-simulator/internal/sim/state"
	"github.com/signalsfoundry/amoebot-simulator/kb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrInvalidRequest is used for client-side validation failures.
var ErrInvalidRequest = errors.New("invalid request")

// ToStatusError maps simulator errors onto gRPC status codes for the
// observer service.
func ToStatusError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, core.ErrInvalidConfig),
		errors.Is(err, core.ErrMalformedPartition):
		return status.Error(codes.InvalidArgument, err.Error())

	case errors.Is(err, history.ErrOutOfRange),
		errors.Is(err, history.ErrAtLatestRound):
		return status.Error(codes.OutOfRange, err.Error())

	case errors.Is(err, core.ErrAmoebotNotFound),
		errors.Is(err, kb.ErrAmoebotNotFound):
		return status.Error(codes.NotFound, err.Error())

	case errors.Is(err, history.ErrEmpty),
		errors.Is(err, history.ErrNotAtLatest),
		errors.Is(err, state.ErrNoEngine),
		errors.Is(err, core.ErrWrongPhase):
		return status.Error(codes.FailedPrecondition, err.Error())

	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())

	default:
		return status.Error(codes.Internal, err.Error())
	}
}
