package chain_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"celo-ledger/internal/chain"
	ct "celo-ledger/internal/chain/chaintest"
)

func TestDecodeNormalisesRecord(t *testing.T) {
	d := chain.NewDecoder(ct.Env())
	tx, err := d.Decode(chain.RawTransaction{
		TransactionHash: "0xabc",
		BlockNumber:     42,
		Timestamp:       "2021-03-04T05:06:07Z",
		GasPrice:        "10",
		GasUsed:         "3",
		Transfers: []chain.RawTransfer{{
			FromAddressHash: "0xAAAA000000000000000000000000000000000001",
			ToAddressHash:   ct.User,
			Token:           "cUSD",
			Value:           "1000000000000000000",
		}},
	})
	require.NoError(t, err)

	assert.Equal(t, uint64(42), tx.BlockNumber)
	assert.Equal(t, time.Date(2021, 3, 4, 5, 6, 7, 0, time.UTC), tx.Timestamp)
	first, ok := tx.Transfers.First()
	require.True(t, ok)
	assert.Equal(t, "0xaaaa000000000000000000000000000000000001", first.FromAddress)
	assert.Equal(t, chain.Fungible, first.Kind)
}

func TestDecodeUnixTimestamp(t *testing.T) {
	tx := ct.Tx(t, "0x01", 10, nil)
	assert.Equal(t, time.Unix(50, 0).UTC(), tx.Timestamp)
}

func TestDecodeRejectsInvalidRecords(t *testing.T) {
	d := chain.NewDecoder(ct.Env())
	cases := map[string]chain.RawTransaction{
		"missing hash":      {Timestamp: "1"},
		"missing timestamp": {TransactionHash: "0x01"},
		"bad timestamp":     {TransactionHash: "0x01", Timestamp: "yesterday"},
		"fractional gas":    {TransactionHash: "0x01", Timestamp: "1", GasPrice: "1.5"},
		"negative value": {TransactionHash: "0x01", Timestamp: "1", Transfers: []chain.RawTransfer{
			{FromAddressHash: ct.User, ToAddressHash: ct.Other, Value: "-1"},
		}},
		"unknown token type": {TransactionHash: "0x01", Timestamp: "1", Transfers: []chain.RawTransfer{
			{FromAddressHash: ct.User, ToAddressHash: ct.Other, Value: "1", TokenType: "ERC-1155"},
		}},
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := d.Decode(raw)
			assert.ErrorIs(t, err, chain.ErrInvalidRecord)
		})
	}
}

func TestTransactionFees(t *testing.T) {
	tx := ct.Tx(t, "0x01", 1, nil, ct.WithFee("5", "7"), ct.WithGatewayFee("3", ct.Other))
	fees := tx.Fees()
	require.Len(t, fees, 2)
	assert.Equal(t, chain.SecurityFee, fees[0].Kind)
	assert.Equal(t, "35", fees[0].Value.String())
	assert.Equal(t, ct.NativeToken, fees[0].Currency)
	assert.Equal(t, chain.GatewayFee, fees[1].Kind)
	assert.Equal(t, "38", chain.SumFees(fees).String())

	withToken := ct.Tx(t, "0x02", 1, nil, ct.WithFee("1", "1"), ct.WithFeeToken(ct.StableCoin))
	assert.Equal(t, ct.StableCoin, withToken.Fees()[0].Currency)

	noRecipient := ct.Tx(t, "0x03", 1, nil, ct.WithGatewayFee("3", ""))
	assert.Empty(t, noRecipient.Fees())
}
