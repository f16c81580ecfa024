package prices

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"celo-ledger/internal/currency"
	"celo-ledger/internal/storage"
)

// DefaultMaxGap is the widest bracket an estimate may interpolate across.
const DefaultMaxGap = 4 * time.Hour

var (
	// ErrPriceNotFound is returned when a bracket sample is missing.
	ErrPriceNotFound = errors.New("prices: no sample brackets the requested time")
	// ErrPriceGapTooLarge is returned when the bracket samples are too far apart.
	ErrPriceGapTooLarge = errors.New("prices: bracket gap too large")
	// ErrExternalRateLookupFailed is returned when the fiat leg cannot be priced.
	ErrExternalRateLookupFailed = currency.ErrExternalRateLookupFailed
)

// RateSource converts between currencies.
type RateSource interface {
	GetExchangeRate(ctx context.Context, req currency.Request) (decimal.Decimal, error)
}

// Options configures the service.
type Options struct {
	// ReferenceToken is the base_token samples are priced in, e.g. the cUSD address.
	ReferenceToken string
	// ReferenceCurrency is what the reference token is converted from, e.g. "cUSD".
	ReferenceCurrency string
	MaxGap            time.Duration
}

// Service estimates historical token prices in local currencies.
type Service struct {
	samples storage.SampleReader
	rates   RateSource
	opts    Options
	logger  zerolog.Logger
}

// NewService builds the price service.
func NewService(opts Options, samples storage.SampleReader, rates RateSource, logger zerolog.Logger) *Service {
	if opts.MaxGap <= 0 {
		opts.MaxGap = DefaultMaxGap
	}
	opts.ReferenceToken = strings.ToLower(opts.ReferenceToken)
	return &Service{
		samples: samples,
		rates:   rates,
		opts:    opts,
		logger:  logger.With().Str("component", "prices").Logger(),
	}
}

// GetTokenToLocalCurrencyPrice prices one unit of token in localCurrency at the
// given time, routing token → reference token → local currency.
func (s *Service) GetTokenToLocalCurrencyPrice(ctx context.Context, token, localCurrency string, at time.Time) (decimal.Decimal, error) {
	price, err := s.estimate(ctx, token, localCurrency, at)
	if err != nil {
		s.logger.Error().Err(err).
			Str("type", "ERROR_CALCULATE_LOCAL_CURRENCY_PRICE").
			Str("token", token).
			Str("local_currency", localCurrency).
			Time("at", at).
			Msg("local currency price unavailable")
		return decimal.Decimal{}, err
	}
	return price, nil
}

func (s *Service) estimate(ctx context.Context, token, localCurrency string, at time.Time) (decimal.Decimal, error) {
	referencePrice, err := s.GetReferencePrice(ctx, token, at)
	if err != nil {
		return decimal.Decimal{}, err
	}

	rate, err := s.rates.GetExchangeRate(ctx, currency.Request{
		Source: s.opts.ReferenceCurrency,
		Target: localCurrency,
		At:     at,
	})
	if err != nil {
		if errors.Is(err, ErrExternalRateLookupFailed) {
			return decimal.Decimal{}, err
		}
		return decimal.Decimal{}, fmt.Errorf("%w: %v", ErrExternalRateLookupFailed, err)
	}
	return referencePrice.Mul(rate), nil
}

// GetReferencePrice interpolates the price of token in the reference token.
func (s *Service) GetReferencePrice(ctx context.Context, token string, at time.Time) (decimal.Decimal, error) {
	token = strings.ToLower(token)
	if token == s.opts.ReferenceToken {
		return decimal.NewFromInt(1), nil
	}

	prev, err := s.samples.LatestAtOrBefore(ctx, token, s.opts.ReferenceToken, at)
	if err != nil {
		return decimal.Decimal{}, s.notFound(err, token, at)
	}
	next, err := s.samples.EarliestAtOrAfter(ctx, token, s.opts.ReferenceToken, at)
	if err != nil {
		return decimal.Decimal{}, s.notFound(err, token, at)
	}

	if gap := next.At.Sub(prev.At); gap > s.opts.MaxGap {
		return decimal.Decimal{}, fmt.Errorf("%w: %s between %s and %s", ErrPriceGapTooLarge, gap, prev.At.Format(time.RFC3339), next.At.Format(time.RFC3339))
	}
	return Interpolate(prev, next, at), nil
}

func (s *Service) notFound(err error, token string, at time.Time) error {
	if errors.Is(err, storage.ErrNoSample) {
		return fmt.Errorf("%w: %s at %s", ErrPriceNotFound, token, at.UTC().Format(time.RFC3339))
	}
	return fmt.Errorf("read price samples: %w", err)
}

// interpolationPlaces bounds the fractional digits of an interpolated price.
// Prices stored as NUMERIC and 18-decimal token amounts fit well inside it.
const interpolationPlaces = 36

// Interpolate estimates the price at t on the line through prev and next,
// rounded half away from zero to interpolationPlaces digits. Results that
// terminate within that many digits are exact. Coinciding samples return
// prev's price.
func Interpolate(prev, next storage.PriceSample, t time.Time) decimal.Decimal {
	span := next.At.Sub(prev.At)
	if span == 0 {
		return prev.Price
	}
	toNext := decimal.NewFromInt(int64(next.At.Sub(t)))
	fromPrev := decimal.NewFromInt(int64(t.Sub(prev.At)))
	return prev.Price.Mul(toNext).
		Add(next.Price.Mul(fromPrev)).
		DivRound(decimal.NewFromInt(int64(span)), interpolationPlaces)
}
