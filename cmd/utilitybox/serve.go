package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Nyvram23/Utility-Box/internal/api"
	"github.com/Nyvram23/Utility-Box/internal/backup"
	"github.com/Nyvram23/Utility-Box/internal/connectivity"
	"github.com/Nyvram23/Utility-Box/internal/logging"
	"github.com/Nyvram23/Utility-Box/internal/notify"
	"github.com/Nyvram23/Utility-Box/internal/sync/scheduler"
	"github.com/Nyvram23/Utility-Box/internal/tools"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(a *app) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the sync core and the local API",
		RunE: func(cmd *cobra.Command, args []string) error {
			if listen != "" {
				a.cfg.ListenAddr = listen
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "listen address (overrides listen_addr)")
	return cmd
}

// serve runs until ctx is cancelled, then shuts the API and the orchestrator down.
func (a *app) serve(ctx context.Context) error {
	st, err := a.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	monitor := connectivity.NewMonitor(true)
	if a.cfg.Sync.ProbeAddr != "" {
		prober := connectivity.NewProber(monitor, a.cfg.Sync.ProbeAddr, a.cfg.Sync.ProbeInterval, nil)
		go prober.Run(ctx)
	}

	hub := notify.NewHub()
	defer hub.Close()
	notifier := notify.Multi(notify.Log{}, hub)

	reg := tools.NewRegistry(st)

	orchestrator := scheduler.New(scheduler.Deps{
		Store:    st,
		Monitor:  monitor,
		Tools:    reg,
		Notifier: notifier,
	}, scheduler.ConfigFrom(a.cfg))
	orchestrator.Start(ctx)
	defer orchestrator.Stop()

	server := &http.Server{
		Addr: a.cfg.ListenAddr,
		Handler: api.NewRouter(api.Deps{
			Sync:   orchestrator,
			Tools:  reg,
			Backup: backup.NewService(reg, notifier),
			Stream: hub,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info("Utility Box host starting", map[string]interface{}{
			"addr":    a.cfg.ListenAddr,
			"backend": a.cfg.StoreBackend,
			"version": Version,
		})
		if err := server.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logging.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	return nil
}
