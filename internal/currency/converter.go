package currency

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"celo-ledger/internal/fetcher"
)

const (
	// RecentRateTTL applies to rates of the last day, which may still move.
	RecentRateTTL = 12 * time.Hour
	settledAfter  = 24 * time.Hour
)

// ErrExternalRateLookupFailed wraps any failure of the external rate source.
var ErrExternalRateLookupFailed = errors.New("currency: external rate lookup failed")

// Request describes one conversion. ImpliedRates, keyed "FROM/TO", win over
// every other source.
type Request struct {
	Source       string
	Target       string
	At           time.Time
	ImpliedRates map[string]decimal.Decimal
}

// Options configures a Converter.
type Options struct {
	// Pegs maps stable tokens to the fiat currency they track, e.g. cUSD → USD.
	Pegs map[string]string
}

// Converter resolves exchange rates between tokens and fiat currencies.
type Converter struct {
	rates  fetcher.ExchangeRateFetcher
	cache  RateCache
	pegs   map[string]string
	logger zerolog.Logger
	now    func() time.Time
}

// NewConverter builds a converter. cache may be nil.
func NewConverter(opts Options, rates fetcher.ExchangeRateFetcher, cache RateCache, logger zerolog.Logger) *Converter {
	pegs := make(map[string]string, len(opts.Pegs))
	for token, fiat := range opts.Pegs {
		pegs[strings.ToLower(token)] = strings.ToUpper(fiat)
	}
	return &Converter{
		rates:  rates,
		cache:  cache,
		pegs:   pegs,
		logger: logger.With().Str("component", "currency_converter").Logger(),
		now:    time.Now,
	}
}

// Fiat maps a pegged token to its fiat code. Anything else is upper-cased.
func (c *Converter) Fiat(code string) string {
	if fiat, ok := c.pegs[strings.ToLower(code)]; ok {
		return fiat
	}
	return strings.ToUpper(code)
}

// IsPegged reports whether the token tracks a fiat currency.
func (c *Converter) IsPegged(token string) bool {
	_, ok := c.pegs[strings.ToLower(token)]
	return ok
}

// GetExchangeRate returns how many units of Target one unit of Source is worth.
func (c *Converter) GetExchangeRate(ctx context.Context, req Request) (decimal.Decimal, error) {
	if req.Target == "" {
		return decimal.Decimal{}, errors.New("currency: no target currency specified")
	}
	if rate, ok := req.ImpliedRates[req.Source+"/"+req.Target]; ok {
		return rate, nil
	}

	source, target := c.Fiat(req.Source), c.Fiat(req.Target)
	if source == "" {
		source = "USD"
	}
	if source == target {
		return decimal.NewFromInt(1), nil
	}

	at := req.At
	if at.IsZero() {
		at = c.now()
	}
	key := source + ":" + target + ":" + at.UTC().Format(time.DateOnly)
	if c.cache != nil {
		if rate, ok := c.cache.Get(ctx, key); ok {
			return rate, nil
		}
	}

	rate, err := c.rates.FetchRate(ctx, source, target, at)
	if err != nil {
		c.logger.Error().Err(err).
			Str("type", "ERROR_FETCHING_EXCHANGE_RATE").
			Str("source", source).
			Str("target", target).
			Time("at", at).
			Msg("exchange rate lookup failed")
		return decimal.Decimal{}, fmt.Errorf("%w: %s/%s: %v", ErrExternalRateLookupFailed, source, target, err)
	}

	if c.cache != nil {
		c.cache.Set(ctx, key, rate, c.cacheTTL(at))
	}
	return rate, nil
}

// cacheTTL keeps settled dates forever.
func (c *Converter) cacheTTL(at time.Time) time.Duration {
	if c.now().Sub(at) >= settledAfter {
		return 0
	}
	return RecentRateTTL
}
