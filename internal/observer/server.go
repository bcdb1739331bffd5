package observer

import (
	"github.com/signalsfoundry/amoebot-simulator/internal/logging"
	"github.com/signalsfoundry/amoebot-simulator/internal/observability"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
)

// NewGRPCServer builds a gRPC server with the observer service registered,
// the otelgrpc stats handler installed and the request, tracing and metrics
// interceptors chained in that order. collector may be nil.
func NewGRPCServer(svc *Service, log logging.Logger, collector *observability.ObserverCollector, opts ...grpc.ServerOption) *grpc.Server {
	var rounds RoundSource
	if svc != nil && svc.state != nil {
		rounds = svc.state
	}
	interceptors := []grpc.UnaryServerInterceptor{
		RequestUnaryServerInterceptor(log, rounds),
		TracingUnaryServerInterceptor(),
	}
	if collector != nil {
		interceptors = append(interceptors, collector.UnaryServerInterceptor())
	}

	base := []grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(interceptors...),
	}
	server := grpc.NewServer(append(base, opts...)...)
	RegisterObserverServer(server, svc)
	return server
}
