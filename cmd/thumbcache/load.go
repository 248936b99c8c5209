package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/meigma/thumbcache"
	"github.com/meigma/thumbcache/config"
	"github.com/meigma/thumbcache/preview"
)

type loadOptions struct {
	outDir string
	width  int
	height int
}

func newLoadCmd(root *rootOptions) *cobra.Command {
	opts := &loadOptions{}
	cmd := &cobra.Command{
		Use:   "load PATH...",
		Short: "Load previews through the cache",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLoad(cmd, root, opts, args)
		},
	}
	cmd.Flags().StringVarP(&opts.outDir, "out", "o", "", "write each preview as a JPEG into this directory")
	cmd.Flags().IntVar(&opts.width, "width", 0, "target preview width (default from config)")
	cmd.Flags().IntVar(&opts.height, "height", 0, "target preview height (default from config)")
	return cmd
}

func runLoad(cmd *cobra.Command, root *rootOptions, opts *loadOptions, paths []string) error {
	s, err := root.settings(func(s *config.Settings) {
		if opts.width > 0 {
			s.TargetWidth = opts.width
		}
		if opts.height > 0 {
			s.TargetHeight = opts.height
		}
	})
	if err != nil {
		return err
	}
	c, err := root.openCache(s, thumbcache.WithoutStartupSweep())
	if err != nil {
		return err
	}
	defer root.closeCache(c)

	if opts.outDir != "" {
		if err := os.MkdirAll(opts.outDir, 0o755); err != nil {
			return err
		}
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	progress := func(ev thumbcache.ProgressEvent) {
		root.logger.Debug("load progress", "path", ev.Path, "stage", ev.Stage.String(), "fraction", ev.Fraction)
	}

	out := cmd.OutOrStdout()
	failed := 0
	for _, path := range paths {
		before := c.Stats()
		p, err := c.Load(ctx, path, progress)
		if err != nil {
			failed++
			fmt.Fprintf(out, "%s\terror: %v\n", path, err)
			continue
		}
		fmt.Fprintf(out, "%s\t%dx%d\t%s\n", path, p.Width(), p.Height(), loadSource(before, c.Stats()))

		if opts.outDir != "" {
			if err := writePreview(opts.outDir, path, p); err != nil {
				return err
			}
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d loads failed", failed, len(paths))
	}
	return nil
}

// loadSource names the tier a load was served from by diffing counters.
func loadSource(before, after thumbcache.Stats) string {
	switch {
	case after.Hits > before.Hits:
		return "memory"
	case after.DiskHits > before.DiskHits:
		return "disk"
	default:
		return "decoded"
	}
}

func writePreview(dir, src string, p *preview.Preview) error {
	name := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src)) + preview.Ext
	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return err
	}
	if err := preview.Encode(f, p, preview.QualityFor(p.Width(), p.Height())); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
