package fetcher

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"celo-ledger/internal/chain"
)

// RegistryAddress is the fixed address of the Celo core contract registry.
const RegistryAddress = chain.RegistryAddress

const (
	registryABIJSON = `[{"inputs":[{"name":"identifier","type":"string"}],"name":"getAddressForString","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"}]`
	exchangeABIJSON = `[{"inputs":[{"name":"sellAmount","type":"uint256"},{"name":"sellGold","type":"bool"}],"name":"getBuyTokenAmount","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"}]`
)

var (
	registryABI = mustParseABI(registryABIJSON)
	exchangeABI = mustParseABI(exchangeABIJSON)
)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic("failed to parse ABI: " + err.Error())
	}
	return parsed
}

// contractCaller is the subset of ethclient used here.
type contractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// CeloOptions parameterise the node client.
type CeloOptions struct {
	RPCURL          string
	RegistryAddress string
	Timeout         time.Duration
}

// Celo reads core contract state over JSON-RPC.
type Celo struct {
	opts      CeloOptions
	logger    zerolog.Logger
	client    contractCaller
	clientMux sync.Mutex
}

// NewCelo builds a node client; the connection is dialled lazily.
func NewCelo(opts CeloOptions, logger zerolog.Logger) *Celo {
	if opts.RegistryAddress == "" {
		opts.RegistryAddress = RegistryAddress
	}
	return &Celo{opts: opts, logger: logger.With().Str("component", "celo_node").Logger()}
}

// ResolveContracts looks every name up in the core registry. Names the
// registry does not know resolve to the null address and are omitted.
func (c *Celo) ResolveContracts(ctx context.Context, names []chain.Contract) (chain.ContractAddresses, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	client, err := c.getClient(ctx)
	if err != nil {
		return nil, err
	}

	registry := common.HexToAddress(c.opts.RegistryAddress)
	resolved := make(map[chain.Contract]string, len(names))
	for _, name := range names {
		payload, err := registryABI.Pack("getAddressForString", string(name))
		if err != nil {
			return nil, err
		}
		res, err := client.CallContract(ctx, ethereum.CallMsg{To: &registry, Data: payload}, nil)
		if err != nil {
			return nil, fmt.Errorf("registry lookup %s: %w", name, err)
		}
		outputs, err := registryABI.Unpack("getAddressForString", res)
		if err != nil {
			return nil, fmt.Errorf("decode registry lookup %s: %w", name, err)
		}
		if len(outputs) != 1 {
			return nil, errors.New("unexpected getAddressForString response")
		}
		addr, ok := outputs[0].(common.Address)
		if !ok {
			return nil, errors.New("failed to decode getAddressForString output")
		}
		if addr == (common.Address{}) {
			c.logger.Warn().Str("contract", string(name)).Msg("contract not registered")
			continue
		}
		resolved[name] = addr.Hex()
	}

	return chain.NewContractAddresses(resolved), nil
}

// Mento quotes the Exchange contract for the price of one native token.
type Mento struct {
	node     *Celo
	exchange string
}

// NewMento quotes through the exchange contract at the given address.
func NewMento(node *Celo, exchangeAddress string) *Mento {
	return &Mento{node: node, exchange: exchangeAddress}
}

// QuoteNativePrice returns how much stable token one native token buys, and
// the block the quote was taken at.
func (m *Mento) QuoteNativePrice(ctx context.Context) (decimal.Decimal, uint64, error) {
	if m.exchange == "" {
		return decimal.Decimal{}, 0, errors.New("exchange contract address not configured")
	}

	ctx, cancel := m.node.withTimeout(ctx)
	defer cancel()

	client, err := m.node.getClient(ctx)
	if err != nil {
		return decimal.Decimal{}, 0, err
	}

	addr := common.HexToAddress(m.exchange)
	sellAmount := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	payload, err := exchangeABI.Pack("getBuyTokenAmount", sellAmount, true)
	if err != nil {
		return decimal.Decimal{}, 0, err
	}

	blockNumber, err := client.BlockNumber(ctx)
	if err != nil {
		return decimal.Decimal{}, 0, err
	}

	res, err := client.CallContract(ctx, ethereum.CallMsg{To: &addr, Data: payload}, new(big.Int).SetUint64(blockNumber))
	if err != nil {
		return decimal.Decimal{}, 0, err
	}
	outputs, err := exchangeABI.Unpack("getBuyTokenAmount", res)
	if err != nil {
		return decimal.Decimal{}, 0, err
	}
	if len(outputs) != 1 {
		return decimal.Decimal{}, 0, errors.New("unexpected getBuyTokenAmount response")
	}
	bought, ok := outputs[0].(*big.Int)
	if !ok {
		return decimal.Decimal{}, 0, errors.New("failed to decode getBuyTokenAmount output")
	}

	return decimal.NewFromBigInt(bought, -18), blockNumber, nil
}

func (c *Celo) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := c.opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return context.WithTimeout(ctx, timeout)
}

func (c *Celo) getClient(ctx context.Context) (contractCaller, error) {
	c.clientMux.Lock()
	defer c.clientMux.Unlock()

	if c.client != nil {
		return c.client, nil
	}
	if c.opts.RPCURL == "" {
		return nil, errors.New("celo rpc url not configured")
	}

	client, err := ethclient.DialContext(ctx, c.opts.RPCURL)
	if err != nil {
		return nil, err
	}
	c.client = client
	return client, nil
}

var (
	_ ContractResolver = (*Celo)(nil)
	_ PriceQuoter      = (*Mento)(nil)
)
