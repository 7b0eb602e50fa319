package cmd

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"logserver/daterange"
	"logserver/storage"
)

// addRangeFlags registers --day/--start/--end on cmd.
func addRangeFlags(cmd *cobra.Command) {
	cmd.Flags().String("day", "", "calendar day YYYY-MM-DD (overrides start/end)")
	cmd.Flags().String("start", "", "range start, YYYY-MM-DD HH:MM:SS (default 24h ago)")
	cmd.Flags().String("end", "", "range end, YYYY-MM-DD HH:MM:SS (default now)")
}

// rangeParams keeps only the range flags given on the command line.
func rangeParams(cmd *cobra.Command) daterange.Params {
	var p daterange.Params
	get := func(name string) *string {
		if !cmd.Flags().Changed(name) {
			return nil
		}
		v, _ := cmd.Flags().GetString(name)
		return &v
	}
	p.Day = get("day")
	p.Start = get("start")
	p.End = get("end")
	return p
}

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Count entries logged in a range (default last 24 hours)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := setup(cmd)
			if err != nil {
				return err
			}
			c, err := newClient(cfg)
			if err != nil {
				return err
			}
			p := rangeParams(cmd)
			n, err := c.Status(cmd.Context(), p)
			if err != nil {
				return err
			}
			what := "in last 24 hours"
			if p.Day != nil || p.Start != nil || p.End != nil {
				clock, err := cfg.Clock()
				if err != nil {
					return err
				}
				rng := daterange.Resolve(p, clock())
				what = fmt.Sprintf("between %s and %s", rng.Start, rng.End)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s entries %s\n", humanize.Comma(n), what)
			return nil
		},
	}
	addRangeFlags(cmd)
	return cmd
}

func newLatestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "latest <stream>",
		Short: "Show the most recent reading of a stream",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := setup(cmd)
			if err != nil {
				return err
			}
			c, err := newClient(cfg)
			if err != nil {
				return err
			}
			rd, err := c.Latest(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if rd == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "no readings for %s\n", args[0])
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s at %s\n", rd.Data, rd.Time)
			return nil
		},
	}
}

// newExtremeCmd builds the max or min command.
func newExtremeCmd(which string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   which + " <stream>",
		Short: fmt.Sprintf("Show the %s value of a stream in a range", which),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := setup(cmd)
			if err != nil {
				return err
			}
			c, err := newClient(cfg)
			if err != nil {
				return err
			}
			fetch := c.Max
			if which == "min" {
				fetch = c.Min
			}
			ext, err := fetch(cmd.Context(), args[0], rangeParams(cmd))
			if err != nil {
				return err
			}
			if ext.Time == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "no readings for %s\n", args[0])
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s at %s\n", ext.Value, *ext.Time)
			return nil
		},
	}
	addRangeFlags(cmd)
	return cmd
}

func newSummaryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "summary <stream>",
		Short: "Show min, avg, max and latest of a stream over the last 24 hours",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := setup(cmd)
			if err != nil {
				return err
			}
			c, err := newClient(cfg)
			if err != nil {
				return err
			}
			s, err := c.Summary(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			latest := "-"
			if s.Latest != nil {
				latest = dec(s.Latest.Data)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "min = %s, avg = %s, max = %s, latest = %s\n",
				dec(s.Min.Value), decp(s.Avg), dec(s.Max.Value), latest)
			return nil
		},
	}
}

func newWeeklyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "weekly <stream>",
		Short: "Show daily min, avg and max for the last seven days",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := setup(cmd)
			if err != nil {
				return err
			}
			c, err := newClient(cfg)
			if err != nil {
				return err
			}
			clock, err := cfg.Clock()
			if err != nil {
				return err
			}
			w, err := c.Weekly(cmd.Context(), args[0], clock())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, d := range w.Days {
				fmt.Fprintf(out, "%s %s: %s %s %s\n",
					d.Weekday.String()[:3], d.Day, dec(d.Min), decp(d.Avg), dec(d.Max))
			}
			fmt.Fprintf(out, "Weekly: %s %s %s\n", decp(w.Min), decp(w.Avg), decp(w.Max))
			return nil
		},
	}
}

// dec renders numbers with two decimals and anything else as-is.
func dec(v storage.Value) string {
	switch v.Kind() {
	case storage.KindNumber:
		return fmt.Sprintf("%.2f", v.Float())
	case storage.KindNull:
		return "-"
	default:
		return v.String()
	}
}

func decp(f *float64) string {
	if f == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", *f)
}
