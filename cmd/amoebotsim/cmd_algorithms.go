package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/signalsfoundry/amoebot-simulator/internal/algorithms"
	"github.com/spf13/cobra"
)

type algorithmInfo struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  []algorithms.Parameter `json:"parameters"`
}

func newAlgorithmsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "algorithms",
		Short: "List the registered algorithms and their parameters",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			out := cmd.OutOrStdout()

			descs := algorithms.List()
			if jsonOut {
				infos := make([]algorithmInfo, 0, len(descs))
				for _, d := range descs {
					infos = append(infos, algorithmInfo{Name: d.Name, Description: d.Description, Parameters: d.Parameters})
				}
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(infos)
			}

			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			for _, d := range descs {
				fmt.Fprintf(w, "%s\t%s\n", d.Name, d.Description)
				for _, p := range d.Parameters {
					fmt.Fprintf(w, "  --param %s=<%s>\tdefault %s. %s\n", p.Key, p.Type, p.Default, p.Description)
				}
			}
			return w.Flush()
		},
	}
}
