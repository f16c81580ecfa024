package classifier

import (
	"strings"

	"celo-ledger/internal/chain"
)

// Classified pairs a transaction with the single kind that matched it.
type Classified struct {
	Transaction *chain.Transaction
	Kind        Kind
}

// Classifier evaluates the registry for one account.
type Classifier struct {
	user     string
	registry []Kind
}

// New returns a classifier for the given account address.
func New(userAddress string) *Classifier {
	return &Classifier{user: strings.ToLower(userAddress), registry: Registry}
}

// UserAddress returns the lower-cased account the classifier works for.
func (c *Classifier) UserAddress() string { return c.user }

// Classify returns the first kind in registry order whose predicate matches.
func (c *Classifier) Classify(tx *chain.Transaction) Classified {
	for _, kind := range c.registry {
		if c.Matches(kind, tx) {
			return Classified{Transaction: tx, Kind: kind}
		}
	}
	return Classified{Transaction: tx, Kind: Any}
}

// ClassifyAll classifies transactions, preserving order.
func (c *Classifier) ClassifyAll(txs []*chain.Transaction) []Classified {
	out := make([]Classified, 0, len(txs))
	for _, tx := range txs {
		out = append(out, c.Classify(tx))
	}
	return out
}

// Matches evaluates the predicate of a single kind.
func (c *Classifier) Matches(kind Kind, tx *chain.Transaction) bool {
	transfers := tx.Transfers
	switch kind {
	case ExchangeContractCall:
		if !transfers.IsEmpty() {
			return false
		}
		for _, exchange := range chain.ExchangeContracts {
			if tx.Input.HasContractCallTo(exchange) {
				return true
			}
		}
		return false
	case EscrowContractCall:
		return transfers.IsEmpty() && tx.Input.HasContractCallTo(chain.Escrow)
	case RegisterAccountDek:
		return transfers.IsEmpty() && tx.Input.RegistersAccountDek(c.user)
	case ContractCall:
		return transfers.IsEmpty()
	case Verification:
		return transfers.Len() == 1 && transfers.ContainsTransferTo(string(chain.Attestations))
	case EscrowSent:
		return transfers.Len() == 1 && transfers.ContainsTransferTo(string(chain.Escrow))
	case TokenSent:
		return transfers.Len() == 1 && transfers.ContainsTransferFrom(c.user)
	case Faucet:
		return transfers.Len() == 1 && transfers.ContainsFaucetTransfer()
	case EscrowReceived:
		return isEscrowReceivedToEOA(transfers) || isEscrowReceivedToWallet(transfers)
	case TokenReceived:
		return transfers.Len() == 1 && transfers.ContainsTransferTo(c.user)
	case ExchangeCeloToToken:
		return transfers.Len() == 3 &&
			transfers.ContainsMintedTokenTransfer() &&
			touchesReserve(transfers) &&
			containsTransferToExchange(transfers)
	case ExchangeTokenToCelo:
		return transfers.Len() == 3 &&
			transfers.ContainsBurnedTokenTransfer() &&
			touchesReserve(transfers) &&
			(containsTransferToExchange(transfers) || containsTransferFromExchange(transfers))
	case NftSent:
		sent, received := c.nftLegs(transfers)
		return sent > received
	case NftReceived:
		sent, received := c.nftLegs(transfers)
		return received > 0 && received >= sent
	case Swap:
		return c.isSwap(transfers)
	case Any:
		return true
	default:
		return false
	}
}

func isEscrowReceivedToEOA(transfers chain.TransferCollection) bool {
	return transfers.Len() == 1 && transfers.ContainsTransferFrom(string(chain.Escrow))
}

// isEscrowReceivedToWallet matches escrow → X followed by X → X, where X is
// the meta-transaction wallet whose account is the recipient.
func isEscrowReceivedToWallet(transfers chain.TransferCollection) bool {
	if transfers.Len() != 2 {
		return false
	}
	toAccount, ok := transfers.GetTransferFrom(string(chain.Escrow))
	if !ok {
		return false
	}
	toWallet, ok := transfers.GetTransferFrom(toAccount.ToAddress)
	if !ok {
		return false
	}
	return strings.EqualFold(toWallet.FromAddress, toAccount.ToAddress) &&
		strings.EqualFold(toWallet.ToAccount, toWallet.FromAddress)
}

func touchesReserve(transfers chain.TransferCollection) bool {
	return transfers.ContainsTransferFrom(string(chain.Reserve)) ||
		transfers.ContainsTransferTo(string(chain.Reserve))
}

func containsTransferToExchange(transfers chain.TransferCollection) bool {
	_, ok := transfers.GetTransferToAny(chain.ExchangeContracts)
	return ok
}

func containsTransferFromExchange(transfers chain.TransferCollection) bool {
	_, ok := transfers.GetTransferFromAny(chain.ExchangeContracts)
	return ok
}

// nftLegs counts NFT transfers leaving and reaching the user.
func (c *Classifier) nftLegs(transfers chain.TransferCollection) (sent, received int) {
	for _, t := range transfers.All() {
		if !t.IsNFT() {
			continue
		}
		if strings.EqualFold(t.FromAddress, c.user) {
			sent++
		}
		if strings.EqualFold(t.ToAddress, c.user) {
			received++
		}
	}
	return sent, received
}

func (c *Classifier) isSwap(transfers chain.TransferCollection) bool {
	if transfers.Len() < 2 {
		return false
	}
	for _, t := range transfers.All() {
		if t.IsNFT() {
			return false
		}
	}
	first, _ := transfers.First()
	last, _ := transfers.Last()
	return strings.EqualFold(first.FromAddress, c.user) && strings.EqualFold(last.ToAddress, c.user)
}
