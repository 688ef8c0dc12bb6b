// Package sinkapp runs the job-result sink: external workers publish
// finished results to JetStream and the sink files them into the job
// store that the API's job check reads.
package sinkapp

import (
	"context"
	"errors"
	"log/slog"
)

type App struct {
	di *dependencyInjector
}

func New(ctx context.Context, cfgPath string) *App {
	di := newDI(cfgPath)
	di.Logger()
	return &App{di: di}
}

func (a *App) Run(ctx context.Context) error {
	defer a.di.Close()

	slog.Info("job sink starting", slog.String("stream", a.di.Config().NATS.Stream))
	if err := a.di.Sink(ctx).Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	slog.Info("job sink shutting down")
	return nil
}
