package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/systemtwo/research/internal/client"
)

func runsCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "runs",
		Short: "List analyses in flight on the service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}
			c := client.NewHTTPClient(cfg.Client.ServiceURL, cfg.Client.Token, 10*time.Second)
			runs, err := c.Runs(cmd.Context())
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SESSION\tCOMPANY\tSTARTED\tNOTICES")
			for _, r := range runs {
				started := time.UnixMilli(r.StartedAt).Format(time.TimeOnly)
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", r.SessionID, r.Company, started, r.Notices)
			}
			return w.Flush()
		},
	}
}
