package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/signalsfoundry/amoebot-simulator/core"
	"github.com/signalsfoundry/amoebot-simulator/internal/logging"
	"github.com/signalsfoundry/amoebot-simulator/internal/observability"
	"github.com/signalsfoundry/amoebot-simulator/internal/observer"
	"github.com/signalsfoundry/amoebot-simulator/internal/sim/state"
	"github.com/signalsfoundry/amoebot-simulator/timectrl"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
)

// serveConfig controls the observer server and the background round loop.
type serveConfig struct {
	MetricsAddress string
	Rounds         int
	Interval       time.Duration
	Mode           timectrl.Mode
}

func newServeCmd(a *app) *cobra.Command {
	opts := &simOptions{}
	var (
		grpcAddr string
		mode     string
		cfg      serveConfig
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the simulation in the background and serve rounds over gRPC",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, ok := timectrl.ParseMode(mode)
			if !ok {
				return fmt.Errorf("unknown mode %q", mode)
			}
			cfg.Mode = m

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			shutdown, err := observability.InitTracing(ctx, opts.tracingConfig(), a.log)
			if err != nil {
				return err
			}
			defer observability.ShutdownWithTimeout(context.Background(), shutdown, a.log)

			lis, err := net.Listen("tcp", grpcAddr)
			if err != nil {
				return fmt.Errorf("listen on %s: %w", grpcAddr, err)
			}
			return serve(ctx, opts, cfg, a.log, lis, prometheus.NewRegistry())
		},
	}

	opts.bind(cmd)
	cmd.Flags().StringVar(&grpcAddr, "grpc-addr", ":50051", "TCP address the observer gRPC server listens on")
	cmd.Flags().StringVar(&cfg.MetricsAddress, "metrics-addr", ":9090", "HTTP address for Prometheus /metrics (empty disables)")
	cmd.Flags().IntVar(&cfg.Rounds, "rounds", 0, "Rounds to simulate before idling (0 = until interrupted)")
	cmd.Flags().DurationVar(&cfg.Interval, "interval", 100*time.Millisecond, "Wall-clock time per round in realtime mode")
	cmd.Flags().StringVar(&mode, "mode", "realtime", "Pacing: realtime or accelerated")
	return cmd
}

// serve runs the simulation and the observer server on lis until ctx is done.
func serve(ctx context.Context, opts *simOptions, cfg serveConfig, log logging.Logger, lis net.Listener, reg *prometheus.Registry) error {
	engineMetrics, err := observability.NewEngineCollector(reg)
	if err != nil {
		return fmt.Errorf("initialise engine metrics: %w", err)
	}
	rpcMetrics, err := observability.NewObserverCollector(reg)
	if err != nil {
		return fmt.Errorf("initialise observer metrics: %w", err)
	}

	st, err := opts.build(log,
		[]core.EngineOption{core.WithMetricsRecorder(engineMetrics)},
		state.WithPopulationRecorder(engineMetrics),
	)
	if err != nil {
		return err
	}

	metricsSrv := serveMetrics(cfg.MetricsAddress, engineMetrics, log)
	server := observer.NewGRPCServer(observer.NewService(st, log), log, rpcMetrics)

	serveErr := make(chan error, 1)
	log.Info(ctx, "starting observer gRPC server", logging.String("addr", lis.Addr().String()))
	go func() {
		serveErr <- server.Serve(lis)
	}()

	loopCtx, cancelLoop := context.WithCancel(ctx)
	defer cancelLoop()
	rc := timectrl.NewRoundController(st, cfg.Interval, cfg.Mode)
	loopDone := rc.Start(loopCtx, cfg.Rounds)

	var result error
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			result = err
		}
	}

	log.Info(context.Background(), "shutting down observer server", logging.Round(rc.Round()))
	cancelLoop()
	<-loopDone
	server.GracefulStop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	if result == nil {
		result = rc.Err()
	}
	return result
}

func serveMetrics(addr string, collector *observability.EngineCollector, log logging.Logger) *http.Server {
	if addr == "" || collector == nil {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn(context.Background(), "metrics server exited", logging.Err(err))
		}
	}()

	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}
