package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"golang.org/x/sync/errgroup"
)

type App struct {
	di  *dependencyInjector
	srv *http.Server
}

func New(ctx context.Context, cfgPath string) *App {
	di := newDI(cfgPath)
	di.Logger()
	return &App{
		di: di,
		srv: &http.Server{
			Addr:    di.Config().Addr,
			Handler: di.Handler(ctx),
		},
	}
}

// Run serves HTTP and sweeps stale downloads until ctx is done, then
// shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	defer a.di.Close()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("starting server", slog.String("addr", a.srv.Addr))
		if err := a.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.String("error", err.Error()))
			return err
		}
		return nil
	})

	g.Go(func() error {
		a.sweepLoop(gctx)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(
			context.Background(),
			a.di.Config().ShutdownTimeout,
		)
		defer cancel()

		if err := a.srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", slog.String("error", err.Error()))
			return err
		}
		if err := a.di.Reaper(shutdownCtx).Stop(shutdownCtx); err != nil {
			slog.Warn("reaper stop", slog.String("error", err.Error()))
		}

		slog.Info("server gracefully stopped")
		return nil
	})

	return g.Wait()
}

// sweepLoop removes downloads whose scheduled deletion was lost, once
// at start-up and then every sweep interval.
func (a *App) sweepLoop(ctx context.Context) {
	cfg := a.di.Config().Downloads
	downloads := a.di.Downloads(ctx)

	sweep := func() {
		n, err := downloads.Sweep(ctx, cfg.MaxAge)
		if err != nil && !errors.Is(err, context.Canceled) {
			slog.Warn("sweep stale downloads", slog.String("error", err.Error()))
		}
		if n > 0 {
			slog.Info("sweep stale downloads", slog.Int("removed", n))
		}
	}

	sweep()
	ticker := a.di.Clock().NewTicker(cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweep()
		}
	}
}
