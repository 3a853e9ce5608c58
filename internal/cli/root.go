package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/GRACE-wDEV/Stemforces-sub001/internal/config"
)

// rootOptions are the persistent flags shared by every subcommand.
type rootOptions struct {
	port       string
	configPath string
	logLevel   string
}

// loadConfig reads the YAML config and applies flag overrides on top of it.
func (o *rootOptions) loadConfig() (config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return cfg, err
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	return cfg, nil
}

// Execute runs the CLI.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:          "battle-service",
		Short:        "STEM quiz battles against simulated opponents over WebSocket",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_, err := config.ParseLevel(opts.logLevel)
			return err
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.port, "port", envOr("PORT", "8080"), "port to listen on")
	flags.StringVar(&opts.configPath, "config", envOr("CONFIG_PATH", "config/config.yaml"), "path to YAML config")
	flags.StringVar(&opts.logLevel, "log-level", os.Getenv("LOG_LEVEL"), "debug, info, warn or error; overrides log.level")
	cmd.AddCommand(newStartCmd(opts))
	cmd.AddCommand(newMigrateCmd(opts))
	return cmd
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
