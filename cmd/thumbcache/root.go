package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/meigma/thumbcache"
	"github.com/meigma/thumbcache/config"
)

type rootOptions struct {
	configFile string
	cacheDir   string
	memoryOnly bool
	verbose    bool

	logger *slog.Logger
	loader *config.Loader
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:          "thumbcache",
		Short:        "Inspect and maintain a two-tier thumbnail cache",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.init(cmd)
		},
	}
	cmd.CompletionOptions.DisableDefaultCmd = true

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.configFile, "config", "c", "", "config file (YAML)")
	flags.StringVar(&opts.cacheDir, "cache-dir", "", "disk cache directory (default: per-user cache dir)")
	flags.BoolVar(&opts.memoryOnly, "memory-only", false, "disable the disk tier")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")

	cmd.AddCommand(
		newLoadCmd(opts),
		newWarmCmd(opts),
		newStatsCmd(opts),
		newSweepCmd(opts),
		newClearCmd(opts),
	)
	return cmd
}

func (o *rootOptions) init(cmd *cobra.Command) error {
	level := slog.LevelInfo
	if o.verbose {
		level = slog.LevelDebug
	}
	o.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	o.loader = config.NewLoader(o.configFile, o.logger)
	if err := o.loader.Viper().BindPFlag("cache_dir", cmd.Flags().Lookup("cache-dir")); err != nil {
		return fmt.Errorf("bind cache-dir flag: %w", err)
	}
	return nil
}

// settings loads the effective settings, applying overrides on top of the
// file and environment.
func (o *rootOptions) settings(overrides ...func(*config.Settings)) (config.Settings, error) {
	s, err := o.loader.Load()
	if err != nil {
		return config.Settings{}, err
	}
	for _, fn := range overrides {
		fn(&s)
	}
	if err := s.Validate(); err != nil {
		return config.Settings{}, fmt.Errorf("invalid settings: %w", err)
	}
	return s, nil
}

// openCache builds a cache from the effective settings.
func (o *rootOptions) openCache(s config.Settings, extra ...thumbcache.Option) (*thumbcache.Cache, error) {
	opts := []thumbcache.Option{
		thumbcache.WithSettings(s),
		thumbcache.WithLogger(o.logger),
	}
	if o.memoryOnly {
		opts = append(opts, thumbcache.WithMemoryOnly())
	}
	opts = append(opts, extra...)
	return thumbcache.New(opts...)
}

// closeCache closes c, logging rather than returning the error so it can be
// deferred.
func (o *rootOptions) closeCache(c *thumbcache.Cache) {
	if err := c.Close(); err != nil {
		o.logger.Warn("close cache", "error", err)
	}
}

// signalContext returns a context cancelled on interrupt or termination.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
