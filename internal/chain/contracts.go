package chain

import (
	"errors"
	"fmt"
	"strings"
)

// Contract is the logical registry name of a core protocol contract.
type Contract string

const (
	Accounts     Contract = "Accounts"
	Attestations Contract = "Attestations"
	Escrow       Contract = "Escrow"
	Exchange     Contract = "Exchange"
	ExchangeEUR  Contract = "ExchangeEUR"
	ExchangeBRL  Contract = "ExchangeBRL"
	GoldToken    Contract = "GoldToken"
	Reserve      Contract = "Reserve"
	StableToken  Contract = "StableToken"
)

// AllContracts lists every contract name the ledger knows about.
var AllContracts = []Contract{Accounts, Attestations, Escrow, Exchange, ExchangeEUR, ExchangeBRL, GoldToken, Reserve, StableToken}

// RegistryAddress is the fixed address of the core contract registry.
const RegistryAddress = "0x000000000000000000000000000000000000ce10"

// NullAddress is the sender of minted and the recipient of burned tokens.
const NullAddress = "0x0000000000000000000000000000000000000000"

// RequiredContracts must resolve before any transaction can be classified.
var RequiredContracts = []Contract{Attestations, Escrow, Exchange, ExchangeEUR, ExchangeBRL, Reserve}

// ExchangeContracts lists every Mento exchange deployment.
var ExchangeContracts = []Contract{Exchange, ExchangeEUR, ExchangeBRL}

// ErrContractNotFound is returned when a required contract has no address.
var ErrContractNotFound = errors.New("chain: contract address not found")

// ContractAddresses maps logical contract names to lower-cased deployed addresses.
type ContractAddresses map[Contract]string

// NewContractAddresses normalises the given table.
func NewContractAddresses(in map[Contract]string) ContractAddresses {
	out := make(ContractAddresses, len(in))
	for name, addr := range in {
		if addr == "" {
			continue
		}
		out[name] = strings.ToLower(addr)
	}
	return out
}

// Address returns the deployed address of the contract.
func (c ContractAddresses) Address(name Contract) (string, bool) {
	addr, ok := c[name]
	return addr, ok && addr != ""
}

// Resolve maps a logical contract name to its address. Anything that is not a
// known contract name is treated as an address and lower-cased.
func (c ContractAddresses) Resolve(nameOrAddress string) string {
	if addr, ok := c.Address(Contract(nameOrAddress)); ok {
		return addr
	}
	return strings.ToLower(nameOrAddress)
}

// Validate checks that every required contract resolved.
func (c ContractAddresses) Validate() error {
	for _, name := range RequiredContracts {
		if _, ok := c.Address(name); !ok {
			return fmt.Errorf("%w: %s", ErrContractNotFound, name)
		}
	}
	return nil
}
