package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/meigma/thumbcache"
)

func newStatsCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show disk cache usage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := root.settings()
			if err != nil {
				return err
			}
			c, err := root.openCache(s, thumbcache.WithoutStartupSweep())
			if err != nil {
				return err
			}
			defer root.closeCache(c)

			size, files, err := c.DiskUsage()
			if err != nil {
				return err
			}
			limit := "unlimited"
			if s.DiskMaxBytes > 0 {
				limit = humanize.Bytes(uint64(s.DiskMaxBytes))
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "dir\t%s\n", c.Dir())
			fmt.Fprintf(w, "memory only\t%t\n", c.MemoryOnly())
			fmt.Fprintf(w, "entries\t%s\n", humanize.Comma(int64(files)))
			fmt.Fprintf(w, "size\t%s\n", humanize.Bytes(uint64(max(size, 0)))) //nolint:gosec // clamped
			fmt.Fprintf(w, "limit\t%s\n", limit)
			fmt.Fprintf(w, "stale after\t%s\n", s.StaleAfter)
			fmt.Fprintf(w, "target\t%dx%d\n", s.TargetWidth, s.TargetHeight)
			return w.Flush()
		},
	}
}

func newSweepCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Remove stale disk entries and enforce the size limit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := root.settings()
			if err != nil {
				return err
			}
			c, err := root.openCache(s, thumbcache.WithoutStartupSweep())
			if err != nil {
				return err
			}
			defer root.closeCache(c)

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()
			res, err := c.Sweep(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "scanned %d, removed %d, freed %s\n",
				res.Scanned, res.Removed, humanize.Bytes(uint64(max(res.FreedBytes, 0)))) //nolint:gosec // clamped
			return nil
		},
	}
}

func newClearCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete every disk cache entry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := root.settings()
			if err != nil {
				return err
			}
			c, err := root.openCache(s, thumbcache.WithoutStartupSweep())
			if err != nil {
				return err
			}
			defer root.closeCache(c)

			before, files, err := c.DiskUsage()
			if err != nil {
				return err
			}
			if err := c.Clear(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d entries, freed %s\n",
				files, humanize.Bytes(uint64(max(before, 0)))) //nolint:gosec // clamped
			return nil
		},
	}
}
