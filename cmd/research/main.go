// Command research runs stock research analyses against the analysis
// service, either interactively or headless, and can serve the service
// itself.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"

	"github.com/spf13/cobra"
	"github.com/systemtwo/research/internal/analysis"
	"github.com/systemtwo/research/internal/client"
	"github.com/systemtwo/research/internal/config"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "research"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, buf[:n])
			os.Exit(2)
		}
	}()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	logLevel   string
	serviceURL string
	token      string
}

// load reads the config file and applies flag overrides.
func (g *globalFlags) load() (*config.Config, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, err
	}
	if g.logLevel != "" {
		cfg.Log.Level = g.logLevel
	}
	if g.serviceURL != "" {
		cfg.Client.ServiceURL = g.serviceURL
		cfg.Client.WSURL = ""
	}
	if g.token != "" {
		cfg.Client.Token = g.token
	}
	return cfg, nil
}

func rootCmd() *cobra.Command {
	g := &globalFlags{}

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Stock research analysis client and service",
		Long: `research submits a ticker symbol to the analysis service, follows the
run's progress over a websocket event channel and shows the final report.

Without a subcommand it starts the interactive terminal UI.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI(g)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&g.configPath, "config", "c", "research.yaml", "Config file path (YAML); missing file means defaults")
	pf.StringVar(&g.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	pf.StringVar(&g.serviceURL, "url", "", "Analysis service base URL (overrides client.service_url)")
	pf.StringVar(&g.token, "token", "", "Auth token (overrides client.token)")

	cmd.AddCommand(tuiCmd(g), runCmd(g), serveCmd(g), runsCmd(g))
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %s (build: %s)\n", appName, Version, BuildTime)
		},
	})
	return cmd
}

// newCoordinator wires the HTTP trigger and websocket channel from cfg.
func newCoordinator(cfg *config.Config, log *slog.Logger) *analysis.Coordinator {
	wsURL := cfg.Client.WSURL
	if wsURL == "" {
		wsURL = client.DeriveWSURL(cfg.Client.ServiceURL)
	}
	return analysis.NewCoordinator(
		client.NewHTTPClient(cfg.Client.ServiceURL, cfg.Client.Token, cfg.Client.RequestTimeout),
		client.ChannelFactory(wsURL, cfg.Client.Token, log),
		analysis.WithTimeout(cfg.Client.AnalysisTimeout),
		analysis.WithLogger(log),
	)
}
