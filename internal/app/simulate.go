package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"celo-ledger/internal/fetcher"
	"celo-ledger/internal/service"
	"celo-ledger/internal/storage"
)

// SimulateOptions configure a dry run of the price ingestion job.
type SimulateOptions struct {
	Price decimal.Decimal
	// Failure, when set, makes the quote fail with this message so the
	// alerting path can be exercised end to end.
	Failure string
}

// SimulateUpdate runs one ingestion tick against an in-memory series with a
// static quote. Configured alert channels receive real notifications.
func (a *App) SimulateUpdate(ctx context.Context, opts SimulateOptions) error {
	if opts.Failure == "" && !opts.Price.IsPositive() {
		return errors.New("price must be greater than zero")
	}
	notifier := a.newNotifier()
	if opts.Failure != "" && notifier == nil {
		return errors.New("no alert channel configured")
	}

	quoter := &staticQuoter{price: opts.Price}
	if opts.Failure != "" {
		quoter.err = errors.New(opts.Failure)
	}

	store := storage.NewMemoryStore()
	updater := service.NewPriceUpdater(service.UpdaterOptions{
		Token:       "simulated",
		BaseToken:   a.Config.Prices.ReferenceCurrency,
		FetchedFrom: "simulated",
	}, nil, quoter, store, notifier, a.Metrics, a.Logger)

	bucket := time.Now().UTC().Truncate(a.Config.Scheduler.Interval)
	if err := updater.ProcessBucket(ctx, bucket); err != nil {
		if opts.Failure != "" {
			a.Logger.Info().Err(err).Msg("simulated failure dispatched")
			return nil
		}
		return err
	}

	samples, err := store.ListRecentSamples(ctx, 1)
	if err != nil {
		return err
	}
	for _, s := range samples {
		fmt.Fprintf(os.Stdout, "%s\t%s\n", s.At.Format(time.RFC3339), s.Price.String())
	}
	return nil
}

type staticQuoter struct {
	price decimal.Decimal
	err   error
}

func (s *staticQuoter) QuoteNativePrice(context.Context) (decimal.Decimal, uint64, error) {
	return s.price, 0, s.err
}

var _ fetcher.PriceQuoter = (*staticQuoter)(nil)
