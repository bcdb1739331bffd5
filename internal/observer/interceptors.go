package observer

import (
	"context"
	"time"

	"github.com/signalsfoundry/amoebot-simulator/internal/logging"
	"github.com/signalsfoundry/amoebot-simulator/internal/observability"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const requestIDMetadataKey = "x-request-id"

// RoundSource reports the stored round range; SimulationState satisfies it.
type RoundSource interface {
	HistoryRange() (earliest, latest int)
}

// RequestUnaryServerInterceptor gives every observer request an id (the
// client's x-request-id when sent), echoes it in the response header and
// stores a request logger on the context tagged with the id, the method and
// the round being served. The outcome is logged at debug.
func RequestUnaryServerInterceptor(base logging.Logger, rounds RoundSource) grpc.UnaryServerInterceptor {
	if base == nil {
		base = logging.Noop()
	}
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if incoming := incomingRequestID(ctx); incoming != "" {
			ctx = logging.ContextWithRequestID(ctx, incoming)
		}
		ctx, id := logging.EnsureRequestID(ctx)
		_ = grpc.SetHeader(ctx, metadata.Pairs(requestIDMetadataKey, id))

		_, method := observability.SplitMethod(info.FullMethod)
		fields := []logging.Field{
			logging.String("request_id", id),
			logging.String("method", method),
		}
		if round, ok := servedRound(req, rounds); ok {
			fields = append(fields, logging.Round(round))
		}
		reqLog := base.With(fields...)
		ctx = logging.ContextWithLogger(ctx, reqLog)

		start := time.Now()
		resp, err := handler(ctx, req)
		reqLog.Debug(ctx, "observer request served",
			logging.Bool("ok", err == nil),
			logging.String("code", status.Code(err).String()),
			logging.Float64("duration_ms", float64(time.Since(start).Microseconds())/1000),
		)
		return resp, err
	}
}

// servedRound is the round a request reads: the explicit round of GetRound,
// otherwise the latest stored one.
func servedRound(req interface{}, rounds RoundSource) (int, bool) {
	if v, ok := req.(*wrapperspb.Int64Value); ok {
		return int(v.GetValue()), true
	}
	if rounds == nil {
		return 0, false
	}
	_, latest := rounds.HistoryRange()
	return latest, true
}

func incomingRequestID(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if vals := md.Get(requestIDMetadataKey); len(vals) > 0 {
		return vals[0]
	}
	return ""
}
