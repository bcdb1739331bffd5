package main

import (
	"context"
	"fmt"
	"time"

	"github.com/signalsfoundry/amoebot-simulator/internal/observer"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

func newInspectCmd() *cobra.Command {
	var (
		addr      string
		round     int
		showRange bool
		timeout   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Fetch a round or the history range from a running 'amoebotsim serve'",
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
			if err != nil {
				return fmt.Errorf("dial %s: %w", addr, err)
			}
			defer conn.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			client := observer.NewClient(conn)
			var msg *structpb.Struct
			switch {
			case showRange:
				msg, err = client.GetHistoryRange(ctx)
			case round < 0:
				msg, err = client.GetLatestRound(ctx)
			default:
				msg, err = client.GetRound(ctx, round)
			}
			if err != nil {
				return err
			}

			jsonOut, _ := cmd.Flags().GetBool("json")
			data, err := protojson.MarshalOptions{Multiline: !jsonOut, Indent: "  "}.Marshal(msg)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return err
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "localhost:50051", "Observer gRPC address")
	cmd.Flags().IntVarP(&round, "round", "r", -1, "Round to fetch (-1 = latest)")
	cmd.Flags().BoolVar(&showRange, "range", false, "Print the stored history range instead of a round")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "Request timeout")
	return cmd
}
