package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/meigma/thumbcache/config"
)

var imageExts = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true,
	".bmp": true, ".tif": true, ".tiff": true, ".webp": true,
}

type warmOptions struct {
	jobs    int
	watch   bool
	profile profileOptions
}

func newWarmCmd(root *rootOptions) *cobra.Command {
	opts := &warmOptions{}
	cmd := &cobra.Command{
		Use:   "warm DIR",
		Short: "Populate the cache with previews of every image under a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWarm(cmd, root, opts, args[0])
		},
	}
	flags := cmd.Flags()
	flags.IntVarP(&opts.jobs, "jobs", "j", runtime.GOMAXPROCS(0), "concurrent loads")
	flags.BoolVar(&opts.watch, "watch-config", false, "apply config file changes while warming")
	flags.StringVar(&opts.profile.cpuProfile, "cpuprofile", "", "write CPU profile to file")
	flags.StringVar(&opts.profile.memProfile, "memprofile", "", "write heap profile to file")
	flags.StringVar(&opts.profile.fgProfile, "fgprofile", "", "write fgprof (wall clock) profile to file")
	flags.StringVar(&opts.profile.traceFile, "trace", "", "write execution trace to file")
	return cmd
}

func runWarm(cmd *cobra.Command, root *rootOptions, opts *warmOptions, dir string) error {
	if opts.jobs <= 0 {
		return errors.New("jobs must be > 0")
	}
	paths, err := collectImages(dir)
	if err != nil {
		return err
	}

	s, err := root.settings()
	if err != nil {
		return err
	}
	c, err := root.openCache(s)
	if err != nil {
		return err
	}
	defer root.closeCache(c)

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	if opts.watch {
		err := root.loader.Watch(func(next config.Settings) {
			if err := c.ApplySettings(ctx, next); err != nil {
				root.logger.Warn("apply reloaded settings", "error", err)
			}
		})
		if err != nil {
			return fmt.Errorf("watch config: %w", err)
		}
	}

	stopProfiles, err := opts.profile.start()
	if err != nil {
		return fmt.Errorf("start profiling: %w", err)
	}

	start := time.Now()
	var loaded, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.jobs)
	for _, path := range paths {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if c.LoadThumbnail(gctx, path, nil) == nil {
				failed.Add(1)
				return nil
			}
			loaded.Add(1)
			return nil
		})
	}
	_ = g.Wait()
	elapsed := time.Since(start)

	if err := stopProfiles(); err != nil {
		root.logger.Warn("stop profiling", "error", err)
	}

	st := c.Stats()
	fmt.Fprintf(cmd.OutOrStdout(),
		"warmed %d of %d images in %s (%d failed): decoded=%d disk_hits=%d memory_hits=%d disk=%s\n",
		loaded.Load(), len(paths), elapsed.Round(time.Millisecond), failed.Load(),
		st.Decodes, st.DiskHits, st.Hits, humanize.Bytes(uint64(max(st.DiskBytes, 0))), //nolint:gosec // clamped
	)
	if err := ctx.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// collectImages returns the image files under dir, skipping unreadable
// subdirectories.
func collectImages(dir string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if d != nil && d.IsDir() && path != dir {
				return fs.SkipDir
			}
			return err
		}
		if d.Type().IsRegular() && imageExts[strings.ToLower(filepath.Ext(path))] {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", dir, err)
	}
	return paths, nil
}
