package consumerapp

import (
	"context"
	"log/slog"
)

type app struct {
	di *dependencyInjector
}

func New(ctx context.Context) *app {
	di := newDI()
	di.Logger()
	return &app{di: di}
}

func (a *app) Run(ctx context.Context) error {
	c := a.di.Consumer(ctx)

	slog.Info("consumer starting...")
	if err := c.Run(ctx); err != nil {
		return err
	}

	<-ctx.Done()

	slog.Info("consumer shutting down...")

	shutdownCtx, cancel := context.WithTimeout(
		context.Background(),
		a.di.Config().Consumer.DrainTimeout,
	)
	defer cancel()

	c.Stop(shutdownCtx)
	return nil
}
