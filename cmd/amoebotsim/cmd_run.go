package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/signalsfoundry/amoebot-simulator/core"
	"github.com/signalsfoundry/amoebot-simulator/internal/logging"
	"github.com/signalsfoundry/amoebot-simulator/internal/observability"
	"github.com/signalsfoundry/amoebot-simulator/internal/observer"
	"github.com/signalsfoundry/amoebot-simulator/timectrl"
	"github.com/spf13/cobra"
	"google.golang.org/protobuf/encoding/protojson"
)

func newRunCmd(a *app) *cobra.Command {
	opts := &simOptions{}
	var (
		rounds   int
		interval time.Duration
		mode     string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Simulate a number of rounds and print per-round statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			m, ok := timectrl.ParseMode(mode)
			if !ok {
				return fmt.Errorf("unknown mode %q", mode)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			shutdown, err := observability.InitTracing(ctx, opts.tracingConfig(), a.log)
			if err != nil {
				return err
			}
			defer observability.ShutdownWithTimeout(context.Background(), shutdown, a.log)

			st, err := opts.build(a.log, nil)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			rc := timectrl.NewRoundController(st, interval, m)
			var printErr error
			rc.AddListener(func(snap *core.RoundSnapshot) {
				if printErr == nil {
					printErr = printRound(out, snap, jsonOut)
				}
			})

			a.log.Info(ctx, "simulation started",
				logging.String("algorithm", opts.algorithm),
				logging.String("shape", opts.shape),
				logging.Int("rounds", rounds),
				logging.String("mode", m.String()),
			)
			<-rc.Start(ctx, rounds)
			if err := rc.Err(); err != nil {
				return err
			}
			return printErr
		},
	}

	opts.bind(cmd)
	cmd.Flags().IntVarP(&rounds, "rounds", "n", 20, "Rounds to simulate (0 = until interrupted)")
	cmd.Flags().DurationVar(&interval, "interval", 0, "Wall-clock time per round in realtime mode")
	cmd.Flags().StringVar(&mode, "mode", "accelerated", "Pacing: realtime or accelerated")
	return cmd
}

func printRound(w io.Writer, snap *core.RoundSnapshot, jsonOut bool) error {
	if !jsonOut {
		_, err := fmt.Fprintln(w, summary(snap.Stats))
		return err
	}
	msg, err := observer.SnapshotToStruct(snap)
	if err != nil {
		return err
	}
	data, err := protojson.Marshal(msg)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
