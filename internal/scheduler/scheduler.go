package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

// ErrInvalidInterval is returned by New for a non-positive interval.
var ErrInvalidInterval = errors.New("scheduler: interval must be positive")

// TickFunc is invoked once per bucket.
type TickFunc func(ctx context.Context, bucket time.Time) error

// Options tune scheduler behaviour.
type Options struct {
	Interval time.Duration
	// AlignToBucket fires on multiples of Interval instead of Interval after start.
	AlignToBucket bool
	StartupDelay  time.Duration
	// RunImmediately fires one tick for the current bucket before waiting.
	RunImmediately bool
}

// Scheduler drives periodic price ingestion.
type Scheduler struct {
	opts   Options
	logger zerolog.Logger
	now    func() time.Time
}

// New constructs a Scheduler instance.
func New(opts Options, logger zerolog.Logger) (*Scheduler, error) {
	if opts.Interval <= 0 {
		return nil, ErrInvalidInterval
	}
	return &Scheduler{
		opts:   opts,
		logger: logger.With().Str("component", "scheduler").Logger(),
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// Run blocks, invoking tick for every bucket until ctx is cancelled. Tick
// errors are logged and do not stop the loop.
func (s *Scheduler) Run(ctx context.Context, tick TickFunc) error {
	if err := sleep(ctx, s.opts.StartupDelay); err != nil {
		return err
	}

	if s.opts.RunImmediately {
		s.fire(ctx, tick, BucketStart(s.now(), s.opts.Interval, s.opts.AlignToBucket))
	}

	next := NextTick(s.now(), s.opts.Interval, s.opts.AlignToBucket)
	for {
		delay := next.Sub(s.now())
		if delay < 0 {
			next = NextTick(s.now(), s.opts.Interval, s.opts.AlignToBucket)
			delay = next.Sub(s.now())
		}

		s.logger.Debug().Time("next_bucket", next).Msg("waiting for next bucket")
		if err := sleep(ctx, delay); err != nil {
			return err
		}

		s.fire(ctx, tick, BucketStart(next, s.opts.Interval, s.opts.AlignToBucket))
		next = next.Add(s.opts.Interval)
	}
}

func (s *Scheduler) fire(ctx context.Context, tick TickFunc, bucket time.Time) {
	s.logger.Info().Time("bucket", bucket).Msg("executing scheduled tick")
	if err := tick(ctx, bucket); err != nil {
		s.logger.Error().Err(err).Time("bucket", bucket).Msg("tick execution failed")
	}
}

// NextTick returns the first firing time strictly after now.
func NextTick(now time.Time, interval time.Duration, align bool) time.Time {
	if !align {
		return now.Add(interval)
	}
	bucket := now.Truncate(interval)
	if !bucket.After(now) {
		bucket = bucket.Add(interval)
	}
	return bucket
}

// BucketStart labels a firing time with the bucket it belongs to.
func BucketStart(t time.Time, interval time.Duration, align bool) time.Time {
	if !align {
		return t
	}
	return t.Truncate(interval)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
