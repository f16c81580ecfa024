// Package chaintest builds decoded transactions for tests.
package chaintest

import (
	"math/big"
	"strconv"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/require"

	"celo-ledger/internal/chain"
)

const (
	User   = "0x1111111111111111111111111111111111111111"
	Other  = "0x2222222222222222222222222222222222222222"
	Wallet = "0x3333333333333333333333333333333333333333"
	Faucet = "0xfa00000000000000000000000000000000000000"

	Accounts     = "0xa000000000000000000000000000000000000001"
	Attestations = "0xa000000000000000000000000000000000000002"
	Escrow       = "0xa000000000000000000000000000000000000003"
	Exchange     = "0xa000000000000000000000000000000000000004"
	ExchangeEUR  = "0xa000000000000000000000000000000000000005"
	ExchangeBRL  = "0xa000000000000000000000000000000000000006"
	GoldToken    = "0xa000000000000000000000000000000000000007"
	Reserve      = "0xa000000000000000000000000000000000000008"
	StableToken  = "0xa000000000000000000000000000000000000009"
	NftContract  = "0xb000000000000000000000000000000000000001"

	NativeToken = "CELO"
	StableCoin  = "cUSD"
)

// Contracts returns a fully resolved contract table.
func Contracts() chain.ContractAddresses {
	return chain.NewContractAddresses(map[chain.Contract]string{
		chain.Accounts:     Accounts,
		chain.Attestations: Attestations,
		chain.Escrow:       Escrow,
		chain.Exchange:     Exchange,
		chain.ExchangeEUR:  ExchangeEUR,
		chain.ExchangeBRL:  ExchangeBRL,
		chain.GoldToken:    GoldToken,
		chain.Reserve:      Reserve,
		chain.StableToken:  StableToken,
	})
}

// Env returns the decoding environment matching Contracts.
func Env() chain.Env {
	return chain.Env{Contracts: Contracts(), FaucetAddress: Faucet, NativeToken: NativeToken}
}

// Transfer builds a fungible transfer of value minor units.
func Transfer(from, to, token, value string) chain.RawTransfer {
	addr := StableToken
	if token == NativeToken {
		addr = GoldToken
	}
	return chain.RawTransfer{
		FromAddressHash: from,
		ToAddressHash:   to,
		FromAccountHash: from,
		ToAccountHash:   to,
		Token:           token,
		TokenAddress:    addr,
		TokenType:       string(chain.Fungible),
		Value:           value,
	}
}

// NFT builds a non-fungible transfer of token id.
func NFT(from, to, id string) chain.RawTransfer {
	return chain.RawTransfer{
		FromAddressHash: from,
		ToAddressHash:   to,
		Token:           "NFT",
		TokenAddress:    NftContract,
		TokenType:       string(chain.NonFungible),
		Value:           id,
	}
}

// Option customises a raw transaction before decoding.
type Option func(*chain.RawTransaction)

// WithFee sets gas price and gas used.
func WithFee(gasPrice, gasUsed string) Option {
	return func(r *chain.RawTransaction) {
		r.GasPrice = gasPrice
		r.GasUsed = gasUsed
	}
}

func WithGatewayFee(fee, recipient string) Option {
	return func(r *chain.RawTransaction) {
		r.GatewayFee = fee
		r.GatewayFeeRecipient = recipient
	}
}

func WithFeeToken(token string) Option {
	return func(r *chain.RawTransaction) { r.FeeToken = token }
}

func WithInput(data []byte) Option {
	return func(r *chain.RawTransaction) { r.Input = hexutil.Encode(data) }
}

func WithComment(comment string) Option {
	return func(r *chain.RawTransaction) { r.Comment = comment }
}

func WithTimestamp(ts time.Time) Option {
	return func(r *chain.RawTransaction) { r.Timestamp = ts.UTC().Format(time.RFC3339) }
}

// Raw builds an undecoded record; its timestamp defaults to five seconds per block.
func Raw(hash string, block uint64, transfers []chain.RawTransfer, opts ...Option) chain.RawTransaction {
	raw := chain.RawTransaction{
		TransactionHash: hash,
		BlockNumber:     block,
		Timestamp:       strconv.FormatUint(block*5, 10),
		Transfers:       transfers,
	}
	for _, opt := range opts {
		opt(&raw)
	}
	return raw
}

// Tx decodes a transaction built by Raw.
func Tx(t testing.TB, hash string, block uint64, transfers []chain.RawTransfer, opts ...Option) *chain.Transaction {
	t.Helper()
	tx, err := chain.NewDecoder(Env()).Decode(Raw(hash, block, transfers, opts...))
	require.NoError(t, err)
	return tx
}

// MetaTransaction wraps inner call data in a wallet executeTransaction call.
func MetaTransaction(t testing.TB, destination string, inner []byte) []byte {
	t.Helper()
	data, err := chain.EncodeCall("executeTransaction", common.HexToAddress(destination), big.NewInt(0), inner)
	require.NoError(t, err)
	return data
}

// SetAccount encodes an Accounts.setAccount call.
func SetAccount(t testing.TB, dek []byte, wallet string) []byte {
	t.Helper()
	var zero [32]byte
	data, err := chain.EncodeCall("setAccount", "name", dek, common.HexToAddress(wallet), uint8(0), zero, zero)
	require.NoError(t, err)
	return data
}

// SetDataEncryptionKey encodes an Accounts.setAccountDataEncryptionKey call.
func SetDataEncryptionKey(t testing.TB, dek []byte) []byte {
	t.Helper()
	data, err := chain.EncodeCall("setAccountDataEncryptionKey", dek)
	require.NoError(t, err)
	return data
}

// Approve encodes an ERC-20 approve(spender, amount) call without an ABI.
func Approve(spender string, amount int64) []byte {
	data := []byte{0x09, 0x5e, 0xa7, 0xb3}
	data = append(data, common.LeftPadBytes(common.HexToAddress(spender).Bytes(), 32)...)
	data = append(data, common.LeftPadBytes(big.NewInt(amount).Bytes(), 32)...)
	return data
}
