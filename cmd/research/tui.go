package main

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"github.com/systemtwo/research/internal/logging"
	"github.com/systemtwo/research/internal/tui/app"
)

func tuiCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Start the interactive terminal UI",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI(g)
		},
	}
}

func runTUI(g *globalFlags) error {
	cfg, err := g.load()
	if err != nil {
		return err
	}
	log, closer, err := logging.NewFile(cfg.Log.Level, cfg.Log.File)
	if err != nil {
		return err
	}
	defer closer.Close()

	coord := newCoordinator(cfg, log)
	defer coord.Close()

	p := tea.NewProgram(app.New(coord, cfg.Client.ServiceURL), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("tui: %w", err)
	}
	return nil
}
