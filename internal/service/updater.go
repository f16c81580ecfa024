package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"celo-ledger/internal/alerting"
	"celo-ledger/internal/fetcher"
	"celo-ledger/internal/scheduler"
	"celo-ledger/internal/storage"
)

const updaterJob = "update-prices"

// UpdateRecorder counts ingestion outcomes.
type UpdateRecorder interface {
	PriceUpdate(err error)
}

// UpdaterOptions configures the price ingestion job.
type UpdaterOptions struct {
	// Token and BaseToken are the addresses the sample is keyed by.
	Token       string
	BaseToken   string
	FetchedFrom string
	LockKey     int64
}

// PriceUpdater appends quoted native token prices to the price series.
type PriceUpdater struct {
	opts      UpdaterOptions
	scheduler *scheduler.Scheduler
	quoter    fetcher.PriceQuoter
	store     storage.SampleStore
	locker    storage.AdvisoryLocker
	notifier  alerting.Notifier
	recorder  UpdateRecorder
	logger    zerolog.Logger

	mu       sync.Mutex
	failures int
}

// NewPriceUpdater builds the job. sched, notifier and recorder may be nil.
func NewPriceUpdater(opts UpdaterOptions, sched *scheduler.Scheduler, quoter fetcher.PriceQuoter, store storage.SampleStore, notifier alerting.Notifier, recorder UpdateRecorder, logger zerolog.Logger) *PriceUpdater {
	opts.Token = strings.ToLower(opts.Token)
	opts.BaseToken = strings.ToLower(opts.BaseToken)

	var locker storage.AdvisoryLocker
	if l, ok := store.(storage.AdvisoryLocker); ok {
		locker = l
	}

	return &PriceUpdater{
		opts:      opts,
		scheduler: sched,
		quoter:    quoter,
		store:     store,
		locker:    locker,
		notifier:  notifier,
		recorder:  recorder,
		logger:    logger.With().Str("component", "price_updater").Logger(),
	}
}

// Run begins the scheduled ingestion loop.
func (u *PriceUpdater) Run(ctx context.Context) error {
	if u.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return u.scheduler.Run(ctx, u.ProcessBucket)
}

// ProcessBucket records one sample at bucket unless another instance holds
// the advisory lock.
func (u *PriceUpdater) ProcessBucket(ctx context.Context, bucket time.Time) error {
	unlock, proceed, err := u.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		u.logger.Debug().Time("bucket", bucket).Msg("skip bucket because advisory lock held elsewhere")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	err = u.record(ctx, bucket)
	if u.recorder != nil {
		u.recorder.PriceUpdate(err)
	}
	u.afterRun(ctx, bucket, err)
	return err
}

func (u *PriceUpdater) record(ctx context.Context, bucket time.Time) error {
	if u.opts.Token == "" || u.opts.BaseToken == "" {
		return errors.New("price pair not configured")
	}

	price, block, err := u.quoter.QuoteNativePrice(ctx)
	if err != nil {
		return fmt.Errorf("quote native price: %w", err)
	}
	if !price.IsPositive() {
		return fmt.Errorf("quote returned non-positive price %s", price)
	}

	sample := storage.PriceSample{
		Token:       u.opts.Token,
		BaseToken:   u.opts.BaseToken,
		Price:       price,
		At:          bucket.UTC(),
		FetchedFrom: u.opts.FetchedFrom,
	}
	if err := u.store.InsertSamples(ctx, []storage.PriceSample{sample}); err != nil {
		return fmt.Errorf("insert price sample: %w", err)
	}

	u.logger.Info().Time("bucket", bucket).
		Uint64("block", block).
		Str("price", price.String()).
		Msg("price sample recorded")
	return nil
}

func (u *PriceUpdater) afterRun(ctx context.Context, bucket time.Time, runErr error) {
	u.mu.Lock()
	if runErr == nil {
		u.failures = 0
		u.mu.Unlock()
		return
	}
	u.failures++
	failures := u.failures
	u.mu.Unlock()

	if u.notifier == nil {
		return
	}
	note := alerting.Notification{
		Bucket:    bucket,
		Job:       updaterJob,
		Token:     u.opts.Token,
		BaseToken: u.opts.BaseToken,
		Failures:  failures,
		Err:       runErr.Error(),
	}
	if err := u.notifier.Notify(ctx, note); err != nil {
		u.logger.Error().Err(err).Time("bucket", bucket).Msg("failed to dispatch alert")
	}
}

func (u *PriceUpdater) acquireLock(ctx context.Context) (func(), bool, error) {
	if u.opts.LockKey == 0 || u.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := u.locker.TryAdvisoryLock(ctx, u.opts.LockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
