package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"celo-ledger/internal/fetcher"
	"celo-ledger/internal/scheduler"
	"celo-ledger/internal/service"
)

// UpdatePrices runs the price ingestion job, once or on the scheduler
// interval until interrupted.
func (a *App) UpdatePrices(ctx context.Context, opts UpdateOptions) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.requireStore(ctx, "record prices")
	if err != nil {
		return err
	}
	defer closeStore()

	node := a.newNode()
	contracts, err := service.LoadContracts(ctx, node, a.Config.ContractAddresses())
	if err != nil {
		return err
	}
	pair, err := a.resolvePricePair(contracts)
	if err != nil {
		return err
	}

	updaterOpts := service.UpdaterOptions{
		Token:       pair.Token,
		BaseToken:   pair.BaseToken,
		FetchedFrom: a.Config.Prices.FetchedFrom,
		LockKey:     a.Config.Scheduler.AdvisoryLockKey,
	}
	quoter := fetcher.NewMento(node, pair.Exchange)

	if opts.Once {
		updater := service.NewPriceUpdater(updaterOpts, nil, quoter, store, a.newNotifier(), a.Metrics, a.Logger)
		return updater.ProcessBucket(ctx, time.Now().UTC())
	}

	sched, err := scheduler.New(scheduler.Options{
		Interval:       a.Config.Scheduler.Interval,
		AlignToBucket:  a.Config.Scheduler.AlignToBucket,
		StartupDelay:   a.Config.Scheduler.StartupDelay,
		RunImmediately: true,
	}, a.Logger)
	if err != nil {
		return err
	}
	updater := service.NewPriceUpdater(updaterOpts, sched, quoter, store, a.newNotifier(), a.Metrics, a.Logger)

	g, gctx := errgroup.WithContext(ctx)
	if a.Config.Metrics.Enabled {
		g.Go(func() error { return a.Metrics.Serve(gctx, a.Config.Metrics.Addr, a.Logger) })
	}
	g.Go(func() error {
		a.Logger.Info().Str("token", pair.Token).Str("base_token", pair.BaseToken).Msg("starting price updater")
		return updater.Run(gctx)
	})

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("price updater terminated with error")
		return err
	}

	a.Logger.Info().Msg("price updater stopped")
	return nil
}
