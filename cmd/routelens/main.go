// RouteLens reads trade route automation logs and shows the latest stock of
// every good at every area, per profile.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/routelens/routelens/pkg/config"
	rlerrors "github.com/routelens/routelens/pkg/errors"
	"github.com/routelens/routelens/pkg/logging"
	"github.com/routelens/routelens/pkg/source"
	"github.com/routelens/routelens/pkg/store"
	"github.com/routelens/routelens/pkg/telemetry"
	"github.com/routelens/routelens/pkg/tui"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

// Global flags
var (
	configFile string
	dirFlag    string
	logLevel   string
	logFormat  string
	noProgress bool
)

// Set up by the root command before any subcommand runs.
var (
	cfg      *config.Config
	logger   = zap.NewNop()
	shutdown telemetry.ShutdownFunc
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		var rlErr *rlerrors.RouteLensError
		if logger.Core().Enabled(zap.DebugLevel) && errors.As(err, &rlErr) {
			fmt.Fprint(os.Stderr, rlErr.FormatStack())
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "routelens",
	Short: "RouteLens - stock overview from trade route automation logs",
	Long: `RouteLens parses the base logs written by the trade route automation and
aggregates the latest stock and request of every good at every area.

Profiles are discovered from TrRAt_<profile>_base.log files and the
per-region remaining deficit/surplus files in the log folder.`,
	Version:           fmt.Sprintf("%s (%s)", version, commit),
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if shutdown != nil {
			_ = shutdown(context.Background())
		}
		_ = logger.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Config file (merged over the standard locations)")
	rootCmd.PersistentFlags().StringVarP(&dirFlag, "dir", "d", "", "Log folder to read (overrides source.dir)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format (console, json)")
	rootCmd.PersistentFlags().BoolVar(&noProgress, "no-progress", false, "Do not draw a progress bar while loading")
}

func setup(cmd *cobra.Command, args []string) error {
	m := config.NewManager()
	if err := m.Load(configFile); err != nil {
		return err
	}
	cfg = m.Get()

	if dirFlag != "" {
		cfg.Source.Kind = config.SourceLocal
		cfg.Source.Dir = dirFlag
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	l, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	logger = l

	shutdown, err = telemetry.Setup(cmd.Context(), cfg.Telemetry)
	if err != nil {
		logger.Warn("tracing disabled", zap.Error(err))
		shutdown = nil
	}
	return nil
}

// signalContext is canceled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// newStore builds a store over the configured source.
func newStore(ctx context.Context, withProgress bool) (*store.Store, error) {
	src, err := source.New(ctx, cfg.Source)
	if err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	opts := []store.Option{
		store.WithLogger(logger),
		store.WithLocation(loc),
	}
	if withProgress && !noProgress {
		opts = append(opts, store.WithProgress(tui.LoadProgress(os.Stderr, "loading profiles")))
	}
	return store.New(src, opts...), nil
}

// loadStore builds a store and runs the first load.
func loadStore(ctx context.Context) (*store.Store, *store.Snapshot, error) {
	st, err := newStore(ctx, true)
	if err != nil {
		return nil, nil, err
	}
	snap, err := st.Load(ctx)
	if err != nil {
		return nil, nil, err
	}
	return st, snap, nil
}
