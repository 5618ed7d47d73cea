package cli

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lazypower/mfu/internal/fsinfo"
	"github.com/lazypower/mfu/internal/mainloop"
	"github.com/lazypower/mfu/internal/mfu"
	"github.com/lazypower/mfu/internal/server"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := newLogger(cfg)

	db, err := openDB(cfg)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The foreground loop owns observer registration and delivery.
	loop := mainloop.New()
	go loop.Run(ctx)

	tracker := mfu.New(db, fsinfo.NewOS(), loop, mfu.Options{
		MaxResults: cfg.Tracker.MaxResults,
		Logger:     log,
	})
	defer tracker.Close()

	if interval := cfg.Tracker.MaintenanceInterval.Duration; interval > 0 {
		tracker.StartMaintenance(interval)
	}

	srv := server.New(db, tracker, loop, log, VersionString())
	addr := cfg.ListenAddr()

	httpServer := &http.Server{
		Addr:    addr,
		Handler: srv,
		// Cancel open streams on shutdown.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("mfu serving on %s", addr)
		log.Infof("  db: %s", db.Path)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
	log.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return httpServer.Shutdown(shutdownCtx)
}
