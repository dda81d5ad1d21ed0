package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/Nyvram23/Utility-Box/internal/config"
	"github.com/Nyvram23/Utility-Box/internal/logging"
	"github.com/Nyvram23/Utility-Box/internal/store"
)

// app carries state shared by subcommands once the root pre-run has loaded it.
type app struct {
	cfgFile string
	cfg     *config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "utilitybox",
		Short: "Utility Box sync host",
		Long: `Utility Box keeps notes, calculator history, post-its, tasks and
solitaire stats on this device and synchronizes them when a session and a
connection are available.`,
		Version:           Version,
		PersistentPreRunE: a.setup,
		SilenceUsage:      true,
		SilenceErrors:     true,
	}

	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/utilitybox/config.yaml)")

	root.AddCommand(
		newServeCmd(a),
		newStatusCmd(a),
		newExportCmd(a),
		newImportCmd(a),
	)

	return root
}

func (a *app) setup(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load(a.cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	a.cfg = cfg

	var out io.Writer = os.Stderr
	if cfg.LogFile != "" {
		out = io.MultiWriter(os.Stderr, logging.FileWriter(cfg.LogFile))
	}
	logging.Init(out, logging.ParseLevel(cfg.LogLevel))

	return nil
}

func (a *app) openStore() (store.Store, error) {
	if a.cfg.StoreBackend != config.BackendMemory {
		if err := os.MkdirAll(a.cfg.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	st, err := store.Open(a.cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", a.cfg.StoreBackend, err)
	}
	return st, nil
}
