package chain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"celo-ledger/internal/chain"
	ct "celo-ledger/internal/chain/chaintest"
)

func TestTransferCollectionResolvesContractNames(t *testing.T) {
	tx := ct.Tx(t, "0x01", 1, []chain.RawTransfer{
		ct.Transfer(ct.User, ct.Escrow, ct.StableCoin, "1000"),
	})

	got, ok := tx.Transfers.GetTransferTo(string(chain.Escrow))
	require.True(t, ok)
	assert.Equal(t, ct.Escrow, got.ToAddress)
	assert.True(t, tx.Transfers.ContainsTransferFrom(ct.User))
	assert.False(t, tx.Transfers.ContainsTransferTo(string(chain.Attestations)))
}

func TestTransferCollectionAddressesAreCaseInsensitive(t *testing.T) {
	upper := "0xABCDEF0000000000000000000000000000000001"
	tx := ct.Tx(t, "0x01", 1, []chain.RawTransfer{
		ct.Transfer(upper, ct.User, ct.StableCoin, "1"),
	})

	assert.True(t, tx.Transfers.ContainsTransferFrom("0xabcdef0000000000000000000000000000000001"))
	assert.True(t, tx.Transfers.ContainsTransferTo("0x1111111111111111111111111111111111111111"))
}

func TestTransferCollectionFirstMatchWins(t *testing.T) {
	tx := ct.Tx(t, "0x01", 1, []chain.RawTransfer{
		ct.Transfer(ct.User, ct.Other, ct.StableCoin, "1"),
		ct.Transfer(ct.User, ct.Other, ct.StableCoin, "2"),
	})

	got, ok := tx.Transfers.GetTransferFrom(ct.User)
	require.True(t, ok)
	assert.Equal(t, "1", got.Value.String())

	first, _ := tx.Transfers.First()
	last, _ := tx.Transfers.Last()
	assert.Equal(t, "1", first.Value.String())
	assert.Equal(t, "2", last.Value.String())
}

func TestTransferCollectionMintBurnAndFaucet(t *testing.T) {
	tx := ct.Tx(t, "0x01", 1, []chain.RawTransfer{
		ct.Transfer(chain.NullAddress, ct.User, ct.StableCoin, "5"),
		ct.Transfer(ct.User, chain.NullAddress, ct.StableCoin, "6"),
		ct.Transfer(ct.Faucet, ct.User, ct.NativeToken, "7"),
	})

	minted, ok := tx.Transfers.GetMintedTokenTransfer()
	require.True(t, ok)
	assert.Equal(t, "5", minted.Value.String())

	burned, ok := tx.Transfers.GetBurnedTokenTransfer()
	require.True(t, ok)
	assert.Equal(t, "6", burned.Value.String())

	faucet, ok := tx.Transfers.GetFaucetTransfer()
	require.True(t, ok)
	assert.Equal(t, "7", faucet.Value.String())
}

func TestTransferCollectionWithoutFaucet(t *testing.T) {
	c := chain.NewTransferCollection([]chain.Transfer{{FromAddress: ct.Faucet, ToAddress: ct.User}}, ct.Contracts(), "")
	assert.False(t, c.ContainsFaucetTransfer())
}

func TestTransferCollectionAnyExchange(t *testing.T) {
	tx := ct.Tx(t, "0x01", 1, []chain.RawTransfer{
		ct.Transfer(ct.User, ct.ExchangeBRL, ct.StableCoin, "1"),
	})

	got, ok := tx.Transfers.GetTransferToAny(chain.ExchangeContracts)
	require.True(t, ok)
	assert.Equal(t, ct.ExchangeBRL, got.ToAddress)

	_, ok = tx.Transfers.GetTransferFromAny(chain.ExchangeContracts)
	assert.False(t, ok)
}

func TestTransferCollectionEmpty(t *testing.T) {
	tx := ct.Tx(t, "0x01", 1, nil)
	assert.True(t, tx.Transfers.IsEmpty())
	_, ok := tx.Transfers.First()
	assert.False(t, ok)
	_, ok = tx.Transfers.Last()
	assert.False(t, ok)
}

func TestContractAddressesValidate(t *testing.T) {
	require.NoError(t, ct.Contracts().Validate())

	partial := chain.NewContractAddresses(map[chain.Contract]string{chain.Escrow: ct.Escrow})
	err := partial.Validate()
	require.ErrorIs(t, err, chain.ErrContractNotFound)
	assert.Contains(t, err.Error(), "Attestations")
}
