package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"celo-ledger/internal/chain"
	"celo-ledger/internal/events"
	"celo-ledger/internal/fetcher"
)

// ErrContractsUnavailable is returned when the contract table cannot be bootstrapped.
var ErrContractsUnavailable = errors.New("service: core contracts unavailable")

// LedgerOptions configures a Ledger.
type LedgerOptions struct {
	NativeToken   string
	StableTokens  []string
	Tokens        []string
	Decimals      map[string]int32
	FaucetAddress string
	LocalCurrency string
	// TokenAddresses maps token symbols to contract addresses for pricing.
	TokenAddresses map[string]string
	Concurrency    int
}

// Recorder collects pipeline metrics.
type Recorder interface {
	events.Recorder
	FailureRecorder
}

// Ledger serves the event history of accounts.
type Ledger struct {
	opts     LedgerOptions
	source   fetcher.TransactionSource
	resolver fetcher.ContractResolver
	pinned   chain.ContractAddresses
	known    events.KnownAddresses
	amounts  *LocalAmounts
	prices   PriceEstimator
	recorder Recorder
	logger   zerolog.Logger

	mu        sync.Mutex
	contracts chain.ContractAddresses
}

// NewLedger builds a ledger. resolver may be nil when every required contract
// is pinned. recorder may be nil.
func NewLedger(opts LedgerOptions, source fetcher.TransactionSource, resolver fetcher.ContractResolver, pinned chain.ContractAddresses, known events.KnownAddresses, rates RateConverter, prices PriceEstimator, recorder Recorder, logger zerolog.Logger) *Ledger {
	if opts.LocalCurrency == "" {
		opts.LocalCurrency = "USD"
	}
	var failures FailureRecorder
	if recorder != nil {
		failures = recorder
	}
	return &Ledger{
		opts:     opts,
		source:   source,
		resolver: resolver,
		pinned:   pinned,
		known:    known,
		amounts:  NewLocalAmounts(rates, prices, opts.TokenAddresses, opts.Concurrency, failures, logger),
		prices:   prices,
		recorder: recorder,
		logger:   logger.With().Str("component", "ledger").Logger(),
	}
}

// Contracts returns the core contract table, loading it on first use. A
// failed load is retried on the next call.
func (l *Ledger) Contracts(ctx context.Context) (chain.ContractAddresses, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.contracts != nil {
		return l.contracts, nil
	}

	contracts, err := LoadContracts(ctx, l.resolver, l.pinned)
	if err != nil {
		return nil, err
	}
	l.logger.Info().Int("contracts", len(contracts)).Msg("contract table loaded")
	l.contracts = contracts
	return contracts, nil
}

// LoadContracts looks up every contract that is not pinned on the Registry
// and validates the merged table. Pinned addresses win. resolver may be nil.
func LoadContracts(ctx context.Context, resolver fetcher.ContractResolver, pinned chain.ContractAddresses) (chain.ContractAddresses, error) {
	merged := make(map[chain.Contract]string, len(chain.AllContracts))
	var missing []chain.Contract
	for _, name := range chain.AllContracts {
		if addr, ok := pinned.Address(name); ok {
			merged[name] = addr
			continue
		}
		missing = append(missing, name)
	}

	if len(missing) > 0 && resolver != nil {
		resolved, err := resolver.ResolveContracts(ctx, missing)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrContractsUnavailable, err)
		}
		for name, addr := range resolved {
			merged[name] = addr
		}
	}

	contracts := chain.NewContractAddresses(merged)
	if err := contracts.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrContractsUnavailable, err)
	}
	return contracts, nil
}

// Events returns the events of address, newest first, with local amounts in
// localCurrency or the configured default when empty.
func (l *Ledger) Events(ctx context.Context, address, localCurrency string) ([]*events.Event, error) {
	if localCurrency == "" {
		localCurrency = l.opts.LocalCurrency
	}

	contracts, err := l.Contracts(ctx)
	if err != nil {
		return nil, err
	}

	raw, err := l.source.FetchTransactions(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("fetch transactions: %w", err)
	}

	var recorder events.Recorder
	if l.recorder != nil {
		recorder = l.recorder
	}
	pipeline := NewPipeline(PipelineOptions{
		Env: chain.Env{
			Contracts:     contracts,
			FaucetAddress: l.opts.FaucetAddress,
			NativeToken:   l.opts.NativeToken,
		},
		Builder: events.Options{
			UserAddress:  address,
			Tokens:       l.opts.Tokens,
			NativeToken:  l.opts.NativeToken,
			StableTokens: l.opts.StableTokens,
			Decimals:     l.opts.Decimals,
			Contracts:    contracts,
		},
		Concurrency: l.opts.Concurrency,
	}, l.known, recorder, l.logger)

	evs, err := pipeline.ClassifyAndBuildEvents(ctx, raw)
	if err != nil {
		return nil, err
	}
	l.amounts.Resolve(ctx, evs, localCurrency)

	l.logger.Debug().
		Str("address", strings.ToLower(address)).
		Int("transactions", len(raw)).
		Int("events", len(evs)).
		Msg("events built")
	return evs, nil
}

// EstimateLocalPrice prices one unit of token, by symbol or address, in
// localCurrency at the given time.
func (l *Ledger) EstimateLocalPrice(ctx context.Context, token, localCurrency string, at time.Time) (decimal.Decimal, error) {
	if localCurrency == "" {
		localCurrency = l.opts.LocalCurrency
	}
	if addr, ok := l.amounts.addresses[strings.ToLower(token)]; ok {
		token = addr
	}
	return l.prices.GetTokenToLocalCurrencyPrice(ctx, token, localCurrency, at)
}
