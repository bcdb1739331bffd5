package observer

import (
	"context"
	"fmt"

	"github.com/signalsfoundry/amoebot-simulator/internal/logging"
	"github.com/signalsfoundry/amoebot-simulator/internal/sim/state"
	"go.opentelemetry.io/otel/codes"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "amoebot.observer.v1.Observer"

// Fully-qualified method names, as seen by interceptors.
const (
	GetLatestRoundMethod  = "/" + ServiceName + "/GetLatestRound"
	GetRoundMethod        = "/" + ServiceName + "/GetRound"
	GetHistoryRangeMethod = "/" + ServiceName + "/GetHistoryRange"
)

// ObserverServer is the read-only observer API. Rounds are returned as
// protobuf Structs built by SnapshotToStruct.
type ObserverServer interface {
	// GetLatestRound returns the newest committed round.
	GetLatestRound(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	// GetRound returns a stored round without moving the cursor.
	GetRound(context.Context, *wrapperspb.Int64Value) (*structpb.Struct, error)
	// GetHistoryRange returns earliest, latest, cursor and at_latest.
	GetHistoryRange(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

// ServiceDesc describes the observer service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ObserverServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetLatestRound", Handler: getLatestRoundHandler},
		{MethodName: "GetRound", Handler: getRoundHandler},
		{MethodName: "GetHistoryRange", Handler: getHistoryRangeHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "amoebot/observer/v1/observer.proto",
}

// RegisterObserverServer attaches srv to a gRPC server.
func RegisterObserverServer(s grpc.ServiceRegistrar, srv ObserverServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func getLatestRoundHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ObserverServer).GetLatestRound(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: GetLatestRoundMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ObserverServer).GetLatestRound(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func getRoundHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.Int64Value)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ObserverServer).GetRound(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: GetRoundMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ObserverServer).GetRound(ctx, req.(*wrapperspb.Int64Value))
	}
	return interceptor(ctx, in, info, handler)
}

func getHistoryRangeHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ObserverServer).GetHistoryRange(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: GetHistoryRangeMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ObserverServer).GetHistoryRange(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

// Service implements ObserverServer backed by a SimulationState.
type Service struct {
	state *state.SimulationState
	log   logging.Logger
}

var _ ObserverServer = (*Service)(nil)

// NewService constructs a Service bound to st.
func NewService(st *state.SimulationState, log logging.Logger) *Service {
	if log == nil {
		log = logging.Noop()
	}
	return &Service{state: st, log: log}
}

func (s *Service) GetLatestRound(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	_, latest := s.state.HistoryRange()
	return s.round(ctx, latest)
}

func (s *Service) GetRound(ctx context.Context, req *wrapperspb.Int64Value) (*structpb.Struct, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	if req == nil || req.GetValue() < 0 {
		return nil, ToStatusError(fmt.Errorf("%w: round must be non-negative", ErrInvalidRequest))
	}
	return s.round(ctx, int(req.GetValue()))
}

func (s *Service) GetHistoryRange(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	view, err := s.state.View()
	if err != nil {
		return nil, s.fail(ctx, "GetHistoryRange", err)
	}
	return RangeToStruct(view.Earliest, view.Latest, view.Snapshot.Round, view.AtLatest), nil
}

func (s *Service) round(ctx context.Context, round int) (*structpb.Struct, error) {
	ctx, span := startChildSpan(ctx, "observer.encode_round", round)
	defer span.End()

	snap, err := s.state.SnapshotAt(round)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, s.fail(ctx, "GetRound", err)
	}
	out, err := SnapshotToStruct(snap)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, s.fail(ctx, "GetRound", err)
	}
	return out, nil
}

func (s *Service) fail(ctx context.Context, op string, err error) error {
	log := logging.LoggerFromContext(ctx)
	if log == nil {
		log = s.log
	}
	log.Debug(ctx, "observer request failed",
		logging.String("operation", op),
		logging.Err(err),
	)
	return ToStatusError(err)
}

func (s *Service) ensureReady() error {
	if s == nil || s.state == nil {
		return ToStatusError(state.ErrNoEngine)
	}
	return nil
}

// Client is a minimal observer client over an existing connection.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps cc.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// GetLatestRound fetches the newest committed round.
func (c *Client) GetLatestRound(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, GetLatestRoundMethod, &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// GetRound fetches a stored round.
func (c *Client) GetRound(ctx context.Context, round int, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, GetRoundMethod, wrapperspb.Int64(int64(round)), out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// GetHistoryRange fetches the stored range and cursor.
func (c *Client) GetHistoryRange(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, GetHistoryRangeMethod, &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
