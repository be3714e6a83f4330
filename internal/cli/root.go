// Package cli implements the dayline commands.
package cli

import (
	"github.com/spf13/cobra"

	"dayline/internal/config"
	appLog "dayline/internal/log"
	"dayline/internal/store"
)

const defaultConfigPath = "/etc/dayline/config.yaml"

// app carries what every command needs once flags are parsed.
type app struct {
	configPath string
	debug      bool
	cfg        *config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "dayline",
		Short: "Lay out and share event day timelines",
		Long: `dayline keeps the run-of-show for multi-day events, lays each day out
as side-by-side blocks, and serves it as JSON, HTML and PNG.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.loadConfig()
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", defaultConfigPath, "path to config file")
	root.PersistentFlags().BoolVar(&a.debug, "debug", false, "enable debug logging")

	// Subcommands (alphabetical)
	root.AddCommand(newEventCmd(a))
	root.AddCommand(newExportCmd(a))
	root.AddCommand(newImportCmd(a))
	root.AddCommand(newLayoutCmd(a))
	root.AddCommand(newServeCmd(a))
	root.AddCommand(newVersionCmd())
	return root
}

// Execute runs the CLI.
func Execute() error {
	return newRootCmd().Execute()
}

func (a *app) loadConfig() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		if cfg == nil {
			return err
		}
		// Default config could not be written; keep going with it.
		appLog.Warn("config: could not write default config", "path", a.configPath, "err", err)
	}
	level := appLog.ParseLevel(cfg.LogLevel)
	if a.debug {
		level = appLog.LevelDebug
	}
	appLog.SetLevel(level)
	a.cfg = cfg

	appLog.Debug("effective config",
		"listen", cfg.Listen,
		"timezone", cfg.Timezone,
		"store", cfg.StorePath,
		"cache_dir", cfg.CacheDir,
		"refresh", cfg.RefreshCron,
		"feeds", len(cfg.Feeds),
	)
	return nil
}

func (a *app) openStore() (*store.Store, error) {
	return store.Open(a.cfg.StorePath)
}
