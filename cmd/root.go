// Package cmd wires configuration, logging, the store and the HTTP API into
// the logserver command tree.
package cmd

import (
	"github.com/spf13/cobra"

	"logserver/client"
	"logserver/config"
	"logserver/logger"
)

// NewRootCmd builds the full command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "logserver",
		Short:        "Time-series log server for home telemetry",
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.String("config", "", "path to a yaml config file (default ./configs/config.yaml)")
	pf.String("server", "http://localhost:8080", "base URL of the log server")
	pf.String("log-level", "info", "debug|info|warn|error")
	pf.String("tz", "", "IANA time zone of stored timestamps (default local)")

	root.AddCommand(
		newServeCmd(),
		newSampleCmd(),
		newLogCmd(),
		newStatusCmd(),
		newLatestCmd(),
		newExtremeCmd("max"),
		newExtremeCmd("min"),
		newSummaryCmd(),
		newWeeklyCmd(),
	)
	return root
}

// setup loads the configuration visible to cmd and a logger writing to the
// command's stderr.
func setup(cmd *cobra.Command) (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return nil, nil, err
	}
	log, err := logger.NewWriter(cfg.LogLevel, cmd.ErrOrStderr())
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

func newClient(cfg *config.Config) (*client.Client, error) {
	c, err := client.New(cfg.ServerURL, nil)
	if err != nil {
		return nil, err
	}
	c.HTTP.Timeout = cfg.ClientTimeout
	return c, nil
}
