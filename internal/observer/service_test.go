package observer

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/signalsfoundry/amoebot-simulator/attr"
	"github.com/signalsfoundry/amoebot-simulator/core"
	"github.com/signalsfoundry/amoebot-simulator/internal/logging"
	"github.com/signalsfoundry/amoebot-simulator/internal/observability"
	"github.com/signalsfoundry/amoebot-simulator/internal/sim/state"
	"github.com/signalsfoundry/amoebot-simulator/kb"
	"github.com/signalsfoundry/amoebot-simulator/model"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
)

func newObservedState(t *testing.T, rounds int) *state.SimulationState {
	t.Helper()
	population := kb.NewKnowledgeBase(1)
	for i, x := range []int{0, 1} {
		n := model.Node{X: x}
		if err := population.AddAmoebot(model.AmoebotSpec{ID: model.AmoebotID(i + 1), Head: n, Tail: n}); err != nil {
			t.Fatalf("AddAmoebot: %v", err)
		}
	}
	cfg := core.DefaultConfig()
	cfg.RandomizeOrder = false
	factory := func(ag *core.Agent) (core.Algorithm, error) {
		heard := attr.MustNew(ag.Attributes(), "heard", false)
		return core.AlgorithmFuncs{
			Movement: func(ag *core.Agent) error {
				heard.Set(ag.AnyBeepReceived())
				return nil
			},
			Beep: func(ag *core.Agent) error {
				if err := ag.SetPinsGlobal(); err != nil {
					return err
				}
				if ag.ID() == 1 {
					return ag.SendBeep(0)
				}
				return nil
			},
		}, nil
	}
	engine, err := core.NewSimulationEngine(cfg, population, factory)
	if err != nil {
		t.Fatalf("NewSimulationEngine: %v", err)
	}
	st := state.NewSimulationState(engine, population, logging.Noop())
	if _, err := st.Run(context.Background(), rounds); err != nil {
		t.Fatalf("Run: %v", err)
	}
	return st
}

func startObserver(t *testing.T, st *state.SimulationState, collector *observability.ObserverCollector) *Client {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}
	server := NewGRPCServer(NewService(st, logging.Noop()), logging.Noop(), collector)
	go func() { _ = server.Serve(lis) }()
	t.Cleanup(server.Stop)

	conn, err := grpc.NewClient(lis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("grpc.NewClient: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return NewClient(conn)
}

func TestObserverServesRounds(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	reg := prometheus.NewRegistry()
	collector, err := observability.NewObserverCollector(reg)
	if err != nil {
		t.Fatalf("NewObserverCollector: %v", err)
	}
	client := startObserver(t, newObservedState(t, 3), collector)

	latest, err := client.GetLatestRound(ctx)
	if err != nil {
		t.Fatalf("GetLatestRound: %v", err)
	}
	fields := latest.GetFields()
	if got := fields["round"].GetNumberValue(); got != 3 {
		t.Fatalf("latest round = %v, want 3", got)
	}
	amoebots := fields["amoebots"].GetListValue().GetValues()
	if len(amoebots) != 2 {
		t.Fatalf("latest round has %d amoebots, want 2", len(amoebots))
	}
	heard := amoebots[1].GetStructValue().GetFields()["attributes"].GetStructValue().GetFields()["heard"]
	if !heard.GetBoolValue() {
		t.Fatalf("amoebot 2 should record the beep from the previous round")
	}

	first, err := client.GetRound(ctx, 0)
	if err != nil {
		t.Fatalf("GetRound(0): %v", err)
	}
	if got := first.GetFields()["round"].GetNumberValue(); got != 0 {
		t.Fatalf("GetRound(0) returned round %v", got)
	}

	rng, err := client.GetHistoryRange(ctx)
	if err != nil {
		t.Fatalf("GetHistoryRange: %v", err)
	}
	rf := rng.GetFields()
	if rf["earliest"].GetNumberValue() != 0 || rf["latest"].GetNumberValue() != 3 || !rf["at_latest"].GetBoolValue() {
		t.Fatalf("GetHistoryRange = %v", rng)
	}

	if got := testutil.ToFloat64(collector.RPCRequests.WithLabelValues("Observer", "GetRound", "OK")); got != 1 {
		t.Fatalf("observer_requests_total{GetRound,OK} = %v, want 1", got)
	}
}

func TestObserverErrorCodes(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client := startObserver(t, newObservedState(t, 1), nil)

	if _, err := client.GetRound(ctx, 42); status.Code(err) != codes.OutOfRange {
		t.Fatalf("GetRound(42) code = %v, want OutOfRange", status.Code(err))
	}
	if _, err := client.GetRound(ctx, -1); status.Code(err) != codes.InvalidArgument {
		t.Fatalf("GetRound(-1) code = %v, want InvalidArgument", status.Code(err))
	}

	empty := startObserver(t, nil, nil)
	if _, err := empty.GetLatestRound(ctx); status.Code(err) != codes.FailedPrecondition {
		t.Fatalf("GetLatestRound without state code = %v, want FailedPrecondition", status.Code(err))
	}
}

func TestPlainValue(t *testing.T) {
	type level uint8
	cases := []struct {
		in   any
		want any
	}{
		{level(3), uint64(3)},
		{model.DirectionE, model.DirectionE.String()},
		{int32(-2), int64(-2)},
		{"x", "x"},
		{nil, nil},
		{[]int{1}, "[1]"},
	}
	for _, c := range cases {
		if got := plainValue(c.in); got != c.want {
			t.Fatalf("plainValue(%#v) = %#v, want %#v", c.in, got, c.want)
		}
	}
}
