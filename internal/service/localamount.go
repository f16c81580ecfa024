package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"celo-ledger/internal/currency"
	"celo-ledger/internal/events"
)

// RateConverter converts between tokens and fiat currencies.
type RateConverter interface {
	GetExchangeRate(ctx context.Context, req currency.Request) (decimal.Decimal, error)
	IsPegged(token string) bool
}

// PriceEstimator prices tokens from the stored price series.
type PriceEstimator interface {
	GetTokenToLocalCurrencyPrice(ctx context.Context, token, localCurrency string, at time.Time) (decimal.Decimal, error)
}

// FailureRecorder counts amounts left without a local value.
type FailureRecorder interface {
	LocalAmountFailed()
}

// LocalAmounts attaches local currency values to event amounts.
type LocalAmounts struct {
	rates       RateConverter
	prices      PriceEstimator
	addresses   map[string]string
	concurrency int
	recorder    FailureRecorder
	logger      zerolog.Logger
}

// NewLocalAmounts builds a resolver. tokenAddresses maps token symbols to the
// contract address the price series is keyed by. recorder may be nil.
func NewLocalAmounts(rates RateConverter, prices PriceEstimator, tokenAddresses map[string]string, concurrency int, recorder FailureRecorder, logger zerolog.Logger) *LocalAmounts {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	addresses := make(map[string]string, len(tokenAddresses))
	for symbol, addr := range tokenAddresses {
		addresses[strings.ToLower(symbol)] = strings.ToLower(addr)
	}
	return &LocalAmounts{
		rates:       rates,
		prices:      prices,
		addresses:   addresses,
		concurrency: concurrency,
		recorder:    recorder,
		logger:      logger.With().Str("component", "local_amounts").Logger(),
	}
}

// Resolve fills LocalAmount on every amount of evs. A failure leaves only the
// affected amount without a local value.
func (r *LocalAmounts) Resolve(ctx context.Context, evs []*events.Event, localCurrency string) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for _, ev := range evs {
		for _, amount := range ev.Amounts() {
			g.Go(func() error {
				rate, err := r.rate(gctx, amount, localCurrency)
				if err != nil {
					r.logger.Warn().Err(err).
						Str("type", "ERROR_FETCHING_LOCAL_AMOUNT").
						Str("tx_hash", ev.TransactionHash).
						Str("token", amount.Token).
						Str("local_currency", localCurrency).
						Msg("local amount unavailable")
					if r.recorder != nil {
						r.recorder.LocalAmountFailed()
					}
					return nil
				}
				amount.LocalAmount = &events.LocalAmount{
					Value:        amount.Value.Mul(rate),
					CurrencyCode: strings.ToUpper(localCurrency),
					ExchangeRate: rate,
				}
				return nil
			})
		}
	}
	_ = g.Wait()
}

// rate prices one unit of the amount's token in localCurrency. Realised
// on-chain rates win, then pegged stable tokens, then the price series.
func (r *LocalAmounts) rate(ctx context.Context, a *events.Amount, localCurrency string) (decimal.Decimal, error) {
	token := a.Token
	if token == "" {
		token = a.TokenAddress
	}

	if rate, ok := a.ImpliedExchangeRates[token+"/"+localCurrency]; ok {
		return rate, nil
	}

	if r.rates.IsPegged(token) {
		return r.rates.GetExchangeRate(ctx, currency.Request{
			Source:       token,
			Target:       localCurrency,
			At:           a.Timestamp,
			ImpliedRates: a.ImpliedExchangeRates,
		})
	}

	if quote, implied, ok := r.impliedViaPegged(token, a.ImpliedExchangeRates); ok {
		fiat, err := r.rates.GetExchangeRate(ctx, currency.Request{Source: quote, Target: localCurrency, At: a.Timestamp})
		if err != nil {
			return decimal.Decimal{}, err
		}
		return implied.Mul(fiat), nil
	}

	address := a.TokenAddress
	if address == "" {
		addr, ok := r.addresses[strings.ToLower(token)]
		if !ok {
			return decimal.Decimal{}, fmt.Errorf("no price series for token %q", token)
		}
		address = addr
	}
	return r.prices.GetTokenToLocalCurrencyPrice(ctx, address, localCurrency, a.Timestamp)
}

// impliedViaPegged finds an implied rate from token into a pegged token.
func (r *LocalAmounts) impliedViaPegged(token string, implied map[string]decimal.Decimal) (string, decimal.Decimal, bool) {
	pairs := make([]string, 0, len(implied))
	for pair := range implied {
		pairs = append(pairs, pair)
	}
	sort.Strings(pairs)

	prefix := token + "/"
	for _, pair := range pairs {
		quote, ok := strings.CutPrefix(pair, prefix)
		if ok && r.rates.IsPegged(quote) {
			return quote, implied[pair], true
		}
	}
	return "", decimal.Decimal{}, false
}
