package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"logserver/collector"
	"logserver/config"
	"logserver/storage"
)

// sourceCollectors builds the collectors for names, or for every configured
// source when names is empty.
func sourceCollectors(cfg *config.Config, names []string, log *zap.Logger) (map[string]collector.Collector, error) {
	if len(names) == 0 {
		for name := range cfg.Sources {
			names = append(names, name)
		}
		sort.Strings(names)
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("no sources configured")
	}

	out := make(map[string]collector.Collector, len(names))
	for _, name := range names {
		src, ok := cfg.Sources[name]
		if !ok {
			return nil, fmt.Errorf("unknown stream %s", name)
		}
		c, err := collector.New(src, log)
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", name, err)
		}
		out[name] = c
	}
	return out, nil
}

func newSampleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sample <stream>",
		Short: "Display the immediate value of a configured source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup(cmd)
			if err != nil {
				return err
			}
			colls, err := sourceCollectors(cfg, args, log.Logger)
			if err != nil {
				return err
			}
			v, err := colls[args[0]].Collect(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), storage.Number(v))
			return nil
		},
	}
}

func newLogCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "log [stream...]",
		Short: "Sample configured sources and append them to the log server",
		Long: "Sample each named source (every configured source when none is named)\n" +
			"and POST the value to the log server. Sources that fail are skipped.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup(cmd)
			if err != nil {
				return err
			}
			colls, err := sourceCollectors(cfg, args, log.Logger)
			if err != nil {
				return err
			}
			c, err := newClient(cfg)
			if err != nil {
				return err
			}

			samples := collector.CollectAll(cmd.Context(), colls, log.Logger)
			failed := len(colls) - len(samples)
			for _, s := range samples {
				if err := c.Append(cmd.Context(), s.Stream, storage.Number(s.Value)); err != nil {
					log.Logger.Error("POST failed", zap.String("stream", s.Stream), zap.Error(err))
					failed++
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", s.Stream, storage.Number(s.Value))
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d streams not logged", failed, len(colls))
			}
			return nil
		},
	}
}
