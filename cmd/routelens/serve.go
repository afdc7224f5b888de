package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/routelens/routelens/pkg/config"
	"github.com/routelens/routelens/pkg/server"
	"github.com/routelens/routelens/pkg/store"
	"github.com/routelens/routelens/pkg/tui"
	"github.com/routelens/routelens/pkg/watch"
)

var (
	servePort  int
	serveHost  string
	serveWatch bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Start the HTTP API over the log folder.

The server provides:
  - Profile, stock, reason, event and usage endpoints under /api/v1
  - Server-Sent Events at /api/v1/events announcing every reload
  - Prometheus metrics at /metrics

With --watch (or watch.enabled), changes in a local log folder reload the
profiles automatically.

Examples:
  routelens serve                      # Start on the configured port
  routelens serve --port 3000 --watch  # Custom port, live reload`,
	RunE: runServe,
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Reload profiles whenever the log folder changes",
	RunE:  runWatch,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to listen on (default server.port)")
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Host to bind to (default server.host)")
	serveCmd.Flags().BoolVarP(&serveWatch, "watch", "w", false, "Reload on changes in the log folder")

	rootCmd.AddCommand(serveCmd, watchCmd)
}

// newWatcher watches the local log folder and reloads st on every batch of
// changes.
func newWatcher(st *store.Store, onReload func(*store.Snapshot)) (*watch.Watcher, error) {
	if cfg.Source.Kind != config.SourceLocal {
		return nil, fmt.Errorf("watching requires a local source, got %q", cfg.Source.Kind)
	}
	w, err := watch.NewWatcher(cfg.Source.Dir, cfg.Watch.Debounce, logger,
		store.ProfileFilePattern, store.BaseLogPattern)
	if err != nil {
		return nil, err
	}

	w.OnChange = func(ctx context.Context, names []string) error {
		logger.Debug("log folder changed", zap.Strings("files", names))
		snap, err := st.Reload(ctx, "watch")
		if errors.Is(err, store.ErrAlreadyLoading) {
			return nil
		}
		if err != nil {
			return err
		}
		if onReload != nil {
			onReload(snap)
		}
		return nil
	}
	w.OnError = func(err error) {
		logger.Warn("watch error", zap.Error(err))
	}
	return w, nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	st, snap, err := loadStore(ctx)
	if err != nil {
		return err
	}
	tui.PrintSnapshot(os.Stdout, snap)

	w, err := newWatcher(st, func(snap *store.Snapshot) {
		fmt.Printf("[%s] reloaded\n", time.Now().Format("15:04:05"))
		tui.PrintSnapshot(os.Stdout, snap)
	})
	if err != nil {
		return err
	}
	defer w.Close()

	fmt.Printf("Watching %s\n", w.Dir())
	fmt.Println("Press Ctrl+C to stop")

	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	if servePort != 0 {
		cfg.Server.Port = servePort
	}
	if serveHost != "" {
		cfg.Server.Host = serveHost
	}

	st, err := newStore(ctx, false)
	if err != nil {
		return err
	}
	srv := server.New(st,
		server.WithLogger(logger),
		server.WithCORSOrigins(cfg.Server.CORSOrigins...))

	// The API answers 503 until the first load completes.
	go func() {
		if _, err := st.Reload(ctx, "startup"); err != nil {
			logger.Error("initial load failed", zap.Error(err))
		}
	}()

	if serveWatch || cfg.Watch.Enabled {
		w, err := newWatcher(st, nil)
		if err != nil {
			return err
		}
		defer w.Close()
		go func() {
			if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("watcher stopped", zap.Error(err))
			}
		}()
	}

	addr := net.JoinHostPort(cfg.Server.Host, fmt.Sprint(cfg.Server.Port))
	httpServer := &http.Server{
		Addr:        addr,
		Handler:     srv,
		ReadTimeout: 30 * time.Second,
		// No write timeout: SSE streams stay open.
		IdleTimeout: 120 * time.Second,
		// Request contexts end with ctx so open SSE streams let Shutdown finish.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	logger.Info("serving", zap.String("addr", listener.Addr().String()), zap.Stringer("source", st.Source()))

	errChan := make(chan error, 1)
	go func() {
		if err := httpServer.Serve(listener); !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
		close(errChan)
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	return httpServer.Shutdown(shutdownCtx)
}
