package events_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"celo-ledger/internal/chain"
	ct "celo-ledger/internal/chain/chaintest"
	"celo-ledger/internal/classifier"
	"celo-ledger/internal/events"
)

const (
	oneToken  = "1000000000000000000"
	twoTokens = "2000000000000000000"
)

type countingRecorder struct{ unknown int }

func (r *countingRecorder) UnknownTransaction() { r.unknown++ }

func newBuilder(tokens ...string) (*events.Builder, *countingRecorder) {
	rec := &countingRecorder{}
	known := events.NewKnownAddressMap(map[string]events.DisplayInfo{
		ct.Other: {Name: "Coffee Shop", ImageURL: "https://example.com/coffee.png"},
	})
	b := events.NewBuilder(events.Options{
		UserAddress:  ct.User,
		Tokens:       tokens,
		NativeToken:  ct.NativeToken,
		StableTokens: []string{ct.StableCoin},
		Contracts:    ct.Contracts(),
	}, known, rec)
	return b, rec
}

func build(t *testing.T, b *events.Builder, txs ...*chain.Transaction) []*events.Event {
	t.Helper()
	aggregated := classifier.Aggregate(classifier.New(ct.User).ClassifyAll(txs))
	out := make([]*events.Event, 0, len(aggregated))
	for _, agg := range aggregated {
		ev, err := b.Build(agg)
		require.NoError(t, err)
		out = append(out, ev)
	}
	return out
}

func TestBuildSentEventIsNegativeWithFees(t *testing.T) {
	b, _ := newBuilder()
	tx := ct.Tx(t, "0x01", 1, []chain.RawTransfer{ct.Transfer(ct.User, ct.Other, ct.StableCoin, oneToken)},
		ct.WithFee("1", "100"), ct.WithComment("lunch"))

	evs := build(t, b, tx)
	require.Len(t, evs, 1)
	ev := evs[0]

	assert.Equal(t, events.Sent, ev.Type)
	assert.Equal(t, ct.Other, ev.Address)
	assert.Equal(t, ct.Other, ev.Account)
	assert.True(t, ev.Amount.Value.Equal(decimal.NewFromInt(-1)), ev.Amount.Value.String())
	assert.Equal(t, "lunch", ev.Metadata.Comment)
	assert.Equal(t, "Coffee Shop", ev.Metadata.Title)
	require.Len(t, ev.Fees, 1)
	assert.Equal(t, chain.SecurityFee, ev.Fees[0].Type)
	assert.True(t, ev.Fees[0].Amount.Value.Equal(decimal.New(1, -16)))
	assert.Equal(t, ct.NativeToken, ev.Fees[0].Amount.Token)
}

func TestBuildReceivedEventIsPositive(t *testing.T) {
	b, _ := newBuilder()
	tx := ct.Tx(t, "0x01", 1, []chain.RawTransfer{ct.Transfer(ct.Other, ct.User, ct.StableCoin, "1234567890123456789")})

	evs := build(t, b, tx)
	require.Len(t, evs, 1)
	assert.Equal(t, events.Received, evs[0].Type)
	assert.Equal(t, "1.234567890123456789", evs[0].Amount.Value.String())
	assert.Empty(t, evs[0].Fees)
}

func TestBuildUsesPerTokenDecimals(t *testing.T) {
	b := events.NewBuilder(events.Options{
		UserAddress: ct.User,
		Decimals:    map[string]int32{"cUSD": 6},
		Contracts:   ct.Contracts(),
	}, nil, nil)
	tx := ct.Tx(t, "0x01", 1, []chain.RawTransfer{ct.Transfer(ct.Other, ct.User, ct.StableCoin, "2500000")})

	evs := build(t, b, tx)
	require.Len(t, evs, 1)
	assert.Equal(t, "2.5", evs[0].Amount.Value.String())
}

func celoToCUSD(t *testing.T, hash string, block uint64, opts ...ct.Option) *chain.Transaction {
	return ct.Tx(t, hash, block, []chain.RawTransfer{
		ct.Transfer(ct.User, ct.Exchange, ct.NativeToken, oneToken),
		ct.Transfer(ct.Exchange, ct.Reserve, ct.NativeToken, oneToken),
		ct.Transfer(chain.NullAddress, ct.User, ct.StableCoin, twoTokens),
	}, opts...)
}

func TestBuildExchangePrefersNonNativeLeg(t *testing.T) {
	b, _ := newBuilder(ct.NativeToken, ct.StableCoin)
	evs := build(t, b, celoToCUSD(t, "0x01", 1))
	require.Len(t, evs, 1)
	ev := evs[0]

	assert.Equal(t, events.Exchange, ev.Type)
	assert.True(t, ev.IsExchange())
	assert.Equal(t, ct.StableCoin, ev.Amount.Token)
	assert.True(t, ev.Amount.Value.Equal(decimal.NewFromInt(2)))
	assert.True(t, ev.InAmount.Value.Equal(decimal.NewFromInt(1)))
	assert.True(t, ev.OutAmount.Value.Equal(decimal.NewFromInt(2)))
	assert.True(t, ev.Rate.Equal(decimal.NewFromInt(2)))
}

func TestBuildExchangeOnlyNativeRequested(t *testing.T) {
	b, _ := newBuilder(ct.NativeToken)
	evs := build(t, b, celoToCUSD(t, "0x01", 1))
	require.Len(t, evs, 1)
	assert.Equal(t, ct.NativeToken, evs[0].Amount.Token)
	assert.True(t, evs[0].Amount.Value.Equal(decimal.NewFromInt(-1)))
}

func TestBuildExchangeSuppressedForOtherTokens(t *testing.T) {
	b, _ := newBuilder("cEUR")
	evs := build(t, b, celoToCUSD(t, "0x01", 1))
	require.Len(t, evs, 1)
	assert.Nil(t, evs[0])
}

func TestBuildExchangeImpliedRates(t *testing.T) {
	b, _ := newBuilder()
	evs := build(t, b, celoToCUSD(t, "0x01", 1))
	require.Len(t, evs, 1)

	rates := evs[0].InAmount.ImpliedExchangeRates
	require.Len(t, rates, 2)
	assert.True(t, rates["CELO/cUSD"].Equal(decimal.NewFromInt(2)))
	assert.True(t, rates["cUSD/CELO"].Equal(decimal.NewFromFloat(0.5)))
	assert.Equal(t, rates, evs[0].OutAmount.ImpliedExchangeRates)
}

func TestBuildExchangeCarriesAggregatedFees(t *testing.T) {
	b, _ := newBuilder()
	approval := ct.Tx(t, "0x01", 1, nil, ct.WithInput(ct.Approve(ct.Exchange, 1)), ct.WithFee("1", "100"))
	evs := build(t, b, approval, celoToCUSD(t, "0x02", 2, ct.WithFee("1", "200")))

	require.Len(t, evs, 1)
	require.Len(t, evs[0].Fees, 2)
	total := evs[0].Fees[0].Amount.Value.Add(evs[0].Fees[1].Amount.Value)
	assert.True(t, total.Equal(decimal.New(3, -16)))
}

func TestBuildSwapTakesInFromLastLegAndOutFromFirst(t *testing.T) {
	b, _ := newBuilder()
	tx := ct.Tx(t, "0x01", 1, []chain.RawTransfer{
		ct.Transfer(ct.User, ct.Other, ct.StableCoin, twoTokens),
		ct.Transfer(ct.Other, ct.User, ct.NativeToken, oneToken),
	})

	evs := build(t, b, tx)
	require.Len(t, evs, 1)
	ev := evs[0]
	assert.Equal(t, events.SwapTransaction, ev.Type)
	assert.Equal(t, ct.NativeToken, ev.InAmount.Token)
	assert.True(t, ev.InAmount.Value.Equal(decimal.NewFromInt(1)))
	assert.Equal(t, ct.StableCoin, ev.OutAmount.Token)
	assert.True(t, ev.OutAmount.Value.Equal(decimal.NewFromInt(2)))
	assert.True(t, ev.Rate.Equal(decimal.NewFromInt(2)))

	// The stable leg is primary and was given away.
	assert.Equal(t, ct.StableCoin, ev.Amount.Token)
	assert.True(t, ev.Amount.Value.Equal(decimal.NewFromInt(-2)))
}

func TestBuildSwapReceivedPrimaryIsPositive(t *testing.T) {
	b, _ := newBuilder()
	tx := ct.Tx(t, "0x01", 1, []chain.RawTransfer{
		ct.Transfer(ct.User, ct.Other, ct.NativeToken, oneToken),
		ct.Transfer(ct.Other, ct.User, ct.StableCoin, twoTokens),
	})

	evs := build(t, b, tx)
	require.Len(t, evs, 1)
	ev := evs[0]
	assert.Equal(t, ct.StableCoin, ev.InAmount.Token)
	assert.Equal(t, ct.NativeToken, ev.OutAmount.Token)
	assert.True(t, ev.Rate.Equal(decimal.NewFromFloat(0.5)))
	assert.Equal(t, ct.StableCoin, ev.Amount.Token)
	assert.True(t, ev.Amount.Value.Equal(decimal.NewFromInt(2)))
}

func TestBuildReceivedAfterFeeOnlyCallCarriesNoFees(t *testing.T) {
	b, _ := newBuilder()
	call := ct.Tx(t, "0x01", 1, nil, ct.WithFee("1", "1000"))
	received := ct.Tx(t, "0x02", 2, []chain.RawTransfer{ct.Transfer(ct.Other, ct.User, ct.StableCoin, oneToken)})
	sent := ct.Tx(t, "0x03", 3, []chain.RawTransfer{ct.Transfer(ct.User, ct.Other, ct.StableCoin, oneToken)}, ct.WithFee("1", "500"))

	evs := build(t, b, call, received, sent)
	require.Len(t, evs, 2)

	assert.Equal(t, events.Received, evs[0].Type)
	assert.Empty(t, evs[0].Fees)
	assert.True(t, evs[0].Amount.Value.IsPositive())

	assert.Equal(t, events.Sent, evs[1].Type)
	require.Len(t, evs[1].Fees, 2)
	total := evs[1].Fees[0].Amount.Value.Add(evs[1].Fees[1].Amount.Value)
	assert.True(t, total.Equal(decimal.New(1500, -18)), total.String())
}

func TestBuildNftEvents(t *testing.T) {
	b, _ := newBuilder()
	tx := ct.Tx(t, "0x01", 1, []chain.RawTransfer{
		ct.Transfer(ct.User, ct.Other, ct.StableCoin, oneToken),
		ct.NFT(ct.Other, ct.User, "42"),
	}, ct.WithFee("1", "1"))

	evs := build(t, b, tx)
	require.Len(t, evs, 1)
	assert.Equal(t, events.NftReceived, evs[0].Type)
	require.Len(t, evs[0].Nfts, 1)
	assert.Equal(t, "42", evs[0].Nfts[0].TokenID)
	assert.Empty(t, evs[0].Fees)
}

func TestBuildUnknownTransaction(t *testing.T) {
	b, rec := newBuilder()
	tx := ct.Tx(t, "0x01", 1, []chain.RawTransfer{
		ct.Transfer(ct.Other, ct.Wallet, ct.StableCoin, oneToken),
		ct.Transfer(ct.Wallet, ct.Other, ct.StableCoin, oneToken),
	})

	_, err := b.Build(classifier.New(ct.User).Classify(tx).Aggregated())
	require.ErrorIs(t, err, events.ErrUnknownTransactionType)
	assert.Equal(t, 1, rec.unknown)
}

func TestBuildMissingExpectedTransfer(t *testing.T) {
	b, _ := newBuilder()
	tx := ct.Tx(t, "0x01", 1, []chain.RawTransfer{ct.Transfer(ct.User, ct.Other, ct.StableCoin, oneToken)})

	_, err := b.Build(classifier.Aggregated{Transaction: tx, Kind: classifier.Verification})
	require.ErrorIs(t, err, events.ErrMissingExpectedTransfer)
}

func TestKnownAddressMapIsCaseInsensitive(t *testing.T) {
	m := events.NewKnownAddressMap(map[string]events.DisplayInfo{"0xABCD": {Name: "Valora"}})
	assert.Equal(t, "Valora", m.GetDisplayInfoFor("0xabcd").Name)
	assert.Empty(t, m.GetDisplayInfoFor("0xffff").Name)
}
