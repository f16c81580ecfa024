package fetcher

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"celo-ledger/internal/chain"
)

// TransactionSource returns the raw transactions touching an address, oldest first.
type TransactionSource interface {
	FetchTransactions(ctx context.Context, address string) ([]chain.RawTransaction, error)
}

// ExchangeRateFetcher retrieves a fiat rate for a calendar date.
type ExchangeRateFetcher interface {
	FetchRate(ctx context.Context, source, target string, date time.Time) (decimal.Decimal, error)
}

// ContractResolver resolves core contract addresses by registry name.
type ContractResolver interface {
	ResolveContracts(ctx context.Context, names []chain.Contract) (chain.ContractAddresses, error)
}

// PriceQuoter quotes the native token price in the reference stable token.
type PriceQuoter interface {
	QuoteNativePrice(ctx context.Context) (decimal.Decimal, uint64, error)
}
