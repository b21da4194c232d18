package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/systemtwo/research/internal/engine"
	"github.com/systemtwo/research/internal/logging"
	"github.com/systemtwo/research/internal/service"
)

func serveCmd(g *globalFlags) *cobra.Command {
	var (
		host       string
		port       int
		engineKind string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the analysis service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}
			if host != "" {
				cfg.Server.Host = host
			}
			if port != 0 {
				cfg.Server.Port = port
			}
			if engineKind != "" {
				cfg.Engine.Kind = engineKind
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			log := logging.New(cfg.Log.Level, cmd.ErrOrStderr())

			eng, err := engine.New(cfg)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			log.Info("starting analysis service", "engine", cfg.Engine.Kind, "auth", cfg.Server.Token != "")
			return service.NewServer(cfg.Server, eng, log).ListenAndServe(ctx, cfg.Addr())
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "Listen host (overrides server.host)")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "Listen port (overrides server.port)")
	cmd.Flags().StringVar(&engineKind, "engine", "", "Analysis engine: scripted or llm (overrides engine.kind)")
	return cmd
}
