package classifier_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"celo-ledger/internal/chain"
	ct "celo-ledger/internal/chain/chaintest"
	"celo-ledger/internal/classifier"
)

func TestAggregateFoldsFeesIntoNextTransaction(t *testing.T) {
	approval := ct.Tx(t, "0x01", 1, nil, ct.WithInput(ct.Approve(ct.Exchange, 10)), ct.WithFee("1", "100"))
	exchange := ct.Tx(t, "0x02", 2, []chain.RawTransfer{
		ct.Transfer(ct.User, ct.Exchange, ct.NativeToken, oneCelo),
		ct.Transfer(ct.Exchange, ct.Reserve, ct.NativeToken, oneCelo),
		ct.Transfer(chain.NullAddress, ct.User, ct.StableCoin, twoCUSD),
	}, ct.WithFee("1", "200"))

	c := classifier.New(ct.User)
	out := classifier.Aggregate(c.ClassifyAll([]*chain.Transaction{approval, exchange}))

	require.Len(t, out, 1)
	assert.Same(t, exchange, out[0].Transaction)
	assert.Equal(t, classifier.ExchangeCeloToToken, out[0].Kind)
	require.Len(t, out[0].Fees, 2)
	assert.Equal(t, "100", out[0].Fees[0].Value.String())
	assert.Equal(t, "200", out[0].Fees[1].Value.String())
}

func TestAggregateConservesFeesAcrossChains(t *testing.T) {
	txs := []*chain.Transaction{
		ct.Tx(t, "0x01", 1, nil, ct.WithFee("1", "1")),
		ct.Tx(t, "0x02", 2, nil, ct.WithFee("1", "2")),
		ct.Tx(t, "0x03", 3, []chain.RawTransfer{ct.Transfer(ct.User, ct.Other, ct.StableCoin, oneCelo)}, ct.WithFee("1", "4")),
		ct.Tx(t, "0x04", 4, []chain.RawTransfer{ct.Transfer(ct.Other, ct.User, ct.StableCoin, oneCelo)}),
	}

	c := classifier.New(ct.User)
	out := classifier.Aggregate(c.ClassifyAll(txs))

	require.Len(t, out, 2)
	assert.Equal(t, "0x03", out[0].Transaction.Hash)
	assert.Equal(t, "7", chain.SumFees(out[0].Fees).String())
	assert.Equal(t, "0x04", out[1].Transaction.Hash)
	assert.Empty(t, out[1].Fees)
}

func TestAggregateDropsTrailingFeeOnlyTransaction(t *testing.T) {
	txs := []*chain.Transaction{
		ct.Tx(t, "0x01", 1, []chain.RawTransfer{ct.Transfer(ct.Other, ct.User, ct.StableCoin, oneCelo)}),
		ct.Tx(t, "0x02", 2, nil, ct.WithFee("1", "1")),
	}

	out := classifier.Aggregate(classifier.New(ct.User).ClassifyAll(txs))
	require.Len(t, out, 1)
	assert.Equal(t, "0x01", out[0].Transaction.Hash)
}

func TestAggregateNonAggregatableKeepsOwnFees(t *testing.T) {
	tx := ct.Tx(t, "0x01", 1, []chain.RawTransfer{ct.Transfer(ct.User, ct.Other, ct.StableCoin, oneCelo)}, ct.WithFee("2", "3"))
	out := classifier.Aggregate(classifier.New(ct.User).ClassifyAll([]*chain.Transaction{tx}))
	require.Len(t, out, 1)
	assert.Equal(t, tx.Fees(), out[0].Fees)
}

func TestDekRegistrationPaysOneTimeEncryptionFee(t *testing.T) {
	dekTx := ct.Tx(t, "0x01", 1, nil,
		ct.WithInput(ct.SetDataEncryptionKey(t, []byte{0x01})),
		ct.WithFee("5", "7"),
		ct.WithGatewayFee("3", ct.Other),
	)
	sent := ct.Tx(t, "0x02", 2, []chain.RawTransfer{ct.Transfer(ct.User, ct.Other, ct.StableCoin, oneCelo)}, ct.WithFee("1", "1"))

	out := classifier.Aggregate(classifier.New(ct.User).ClassifyAll([]*chain.Transaction{dekTx, sent}))
	require.Len(t, out, 1)
	require.Len(t, out[0].Fees, 2)
	assert.Equal(t, chain.OneTimeEncryptionFee, out[0].Fees[0].Kind)
	assert.Equal(t, "38", out[0].Fees[0].Value.String())
	assert.Equal(t, ct.NativeToken, out[0].Fees[0].Currency)
	assert.Equal(t, chain.SecurityFee, out[0].Fees[1].Kind)
}

func TestAggregateHoldsFeesAcrossIncomingTransactions(t *testing.T) {
	txs := []*chain.Transaction{
		ct.Tx(t, "0x01", 1, nil, ct.WithFee("1", "1000")),
		ct.Tx(t, "0x02", 2, []chain.RawTransfer{ct.Transfer(ct.Other, ct.User, ct.StableCoin, oneCelo)}, ct.WithFee("1", "9")),
		ct.Tx(t, "0x03", 3, []chain.RawTransfer{ct.Transfer(ct.User, ct.Other, ct.StableCoin, oneCelo)}, ct.WithFee("1", "500")),
	}

	out := classifier.Aggregate(classifier.New(ct.User).ClassifyAll(txs))
	require.Len(t, out, 2)

	assert.Equal(t, "0x02", out[0].Transaction.Hash)
	assert.Equal(t, classifier.TokenReceived, out[0].Kind)
	assert.Empty(t, out[0].Fees)

	assert.Equal(t, "0x03", out[1].Transaction.Hash)
	require.Len(t, out[1].Fees, 2)
	assert.Equal(t, "1000", out[1].Fees[0].Value.String())
	assert.Equal(t, "1500", chain.SumFees(out[1].Fees).String())
}

func TestAggregateDropsFeesHeldPastTrailingIncoming(t *testing.T) {
	txs := []*chain.Transaction{
		ct.Tx(t, "0x01", 1, nil, ct.WithFee("1", "1000")),
		ct.Tx(t, "0x02", 2, []chain.RawTransfer{ct.Transfer(ct.Other, ct.User, ct.StableCoin, oneCelo)}),
	}

	out := classifier.Aggregate(classifier.New(ct.User).ClassifyAll(txs))
	require.Len(t, out, 1)
	assert.Equal(t, classifier.TokenReceived, out[0].Kind)
	assert.Empty(t, out[0].Fees)
}
