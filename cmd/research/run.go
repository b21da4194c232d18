package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/systemtwo/research/internal/analysis"
	"github.com/systemtwo/research/internal/logging"
)

func runCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run <ticker>",
		Short: "Run one analysis headless and print the report",
		Long: `run submits the ticker, prints progress notices to stderr as they arrive
and writes the report to stdout. It exits non-zero if the analysis fails.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}
			log := logging.New(cfg.Log.Level, cmd.ErrOrStderr())

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			coord := newCoordinator(cfg, log)
			defer coord.Close()
			return follow(ctx, coord, args[0], cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
}

// follow starts an analysis and streams it until it reaches a terminal phase.
// Cancelling ctx cancels the analysis.
func follow(ctx context.Context, coord *analysis.Coordinator, subject string, out, progress io.Writer) error {
	if err := coord.RunAnalysis(subject); err != nil {
		return err
	}
	notices := coord.Progress()
	printed := 0

	for {
		snap := coord.Snapshot()
		i := 0
		for n := range notices {
			if i >= printed {
				fmt.Fprintf(progress, "  %s\n", n)
				printed++
			}
			i++
		}

		switch snap.Phase {
		case analysis.Completed:
			fmt.Fprintln(out, snap.Result)
			return nil
		case analysis.Failed:
			if snap.Fault != nil {
				return snap.Fault
			}
			return errors.New(snap.Error)
		}

		select {
		case <-coord.Changed():
		case <-ctx.Done():
			coord.Cancel()
		}
	}
}
