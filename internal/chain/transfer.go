package chain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// TokenKind distinguishes fungible from non-fungible transfers.
type TokenKind string

const (
	Fungible    TokenKind = "ERC-20"
	NonFungible TokenKind = "ERC-721"
)

// Transfer is a single value movement inside a transaction.
type Transfer struct {
	FromAddress  string
	ToAddress    string
	FromAccount  string
	ToAccount    string
	Token        string
	TokenAddress string
	Value        decimal.Decimal
	Kind         TokenKind
}

// IsNFT reports whether the transfer moves a non-fungible token.
func (t Transfer) IsNFT() bool {
	return t.Kind == NonFungible
}

// TransferCollection is an ordered, read-only view over the transfers of one
// transaction. Logical contract names are resolved through the contract table.
type TransferCollection struct {
	transfers []Transfer
	contracts ContractAddresses
	faucet    string
}

// NewTransferCollection wraps transfers in their original order.
func NewTransferCollection(transfers []Transfer, contracts ContractAddresses, faucetAddress string) TransferCollection {
	items := make([]Transfer, len(transfers))
	copy(items, transfers)
	return TransferCollection{
		transfers: items,
		contracts: contracts,
		faucet:    strings.ToLower(faucetAddress),
	}
}

func (c TransferCollection) IsEmpty() bool { return len(c.transfers) == 0 }

func (c TransferCollection) Len() int { return len(c.transfers) }

// All returns a copy of the wrapped transfers.
func (c TransferCollection) All() []Transfer {
	out := make([]Transfer, len(c.transfers))
	copy(out, c.transfers)
	return out
}

// First returns the first transfer in order.
func (c TransferCollection) First() (Transfer, bool) {
	if c.IsEmpty() {
		return Transfer{}, false
	}
	return c.transfers[0], true
}

// Last returns the last transfer in order.
func (c TransferCollection) Last() (Transfer, bool) {
	if c.IsEmpty() {
		return Transfer{}, false
	}
	return c.transfers[len(c.transfers)-1], true
}

// GetTransferFrom returns the first transfer sent by the given address or contract.
func (c TransferCollection) GetTransferFrom(sender string) (Transfer, bool) {
	addr := c.contracts.Resolve(sender)
	return c.find(func(t Transfer) bool { return strings.EqualFold(t.FromAddress, addr) })
}

// GetTransferTo returns the first transfer received by the given address or contract.
func (c TransferCollection) GetTransferTo(recipient string) (Transfer, bool) {
	addr := c.contracts.Resolve(recipient)
	return c.find(func(t Transfer) bool { return strings.EqualFold(t.ToAddress, addr) })
}

func (c TransferCollection) ContainsTransferFrom(sender string) bool {
	_, ok := c.GetTransferFrom(sender)
	return ok
}

func (c TransferCollection) ContainsTransferTo(recipient string) bool {
	_, ok := c.GetTransferTo(recipient)
	return ok
}

// GetTransferToAny returns the first transfer to the first listed contract that received one.
func (c TransferCollection) GetTransferToAny(contracts []Contract) (Transfer, bool) {
	for _, name := range contracts {
		if t, ok := c.GetTransferTo(string(name)); ok {
			return t, true
		}
	}
	return Transfer{}, false
}

// GetTransferFromAny returns the first transfer from the first listed contract that sent one.
func (c TransferCollection) GetTransferFromAny(contracts []Contract) (Transfer, bool) {
	for _, name := range contracts {
		if t, ok := c.GetTransferFrom(string(name)); ok {
			return t, true
		}
	}
	return Transfer{}, false
}

func (c TransferCollection) GetMintedTokenTransfer() (Transfer, bool) {
	return c.GetTransferFrom(NullAddress)
}

func (c TransferCollection) GetBurnedTokenTransfer() (Transfer, bool) {
	return c.GetTransferTo(NullAddress)
}

func (c TransferCollection) ContainsMintedTokenTransfer() bool {
	return c.ContainsTransferFrom(NullAddress)
}

func (c TransferCollection) ContainsBurnedTokenTransfer() bool {
	return c.ContainsTransferTo(NullAddress)
}

// GetFaucetTransfer returns the first transfer sent by the configured faucet.
func (c TransferCollection) GetFaucetTransfer() (Transfer, bool) {
	if c.faucet == "" {
		return Transfer{}, false
	}
	return c.GetTransferFrom(c.faucet)
}

func (c TransferCollection) ContainsFaucetTransfer() bool {
	_, ok := c.GetFaucetTransfer()
	return ok
}

func (c TransferCollection) find(pred func(Transfer) bool) (Transfer, bool) {
	for _, t := range c.transfers {
		if pred(t) {
			return t, true
		}
	}
	return Transfer{}, false
}
