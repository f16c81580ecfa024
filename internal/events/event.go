package events

import (
	"time"

	"github.com/shopspring/decimal"

	"celo-ledger/internal/chain"
)

// Type is the user-facing label of an event.
type Type string

const (
	Sent            Type = "SENT"
	Received        Type = "RECEIVED"
	EscrowSent      Type = "ESCROW_SENT"
	EscrowReceived  Type = "ESCROW_RECEIVED"
	Faucet          Type = "FAUCET"
	VerificationFee Type = "VERIFICATION_FEE"
	Exchange        Type = "EXCHANGE"
	SwapTransaction Type = "SWAP_TRANSACTION"
	NftSent         Type = "NFT_SENT"
	NftReceived     Type = "NFT_RECEIVED"
)

// LocalAmount is an amount converted to a fiat currency.
type LocalAmount struct {
	Value        decimal.Decimal `json:"value"`
	CurrencyCode string          `json:"currencyCode"`
	ExchangeRate decimal.Decimal `json:"exchangeRate"`
}

// Amount is a value in major units of a token.
type Amount struct {
	Value        decimal.Decimal `json:"value"`
	Token        string          `json:"token,omitempty"`
	TokenAddress string          `json:"tokenAddress,omitempty"`
	Timestamp    time.Time       `json:"timestamp"`
	// ImpliedExchangeRates are realised on-chain rates keyed "FROM/TO"; they
	// take precedence over estimated market rates during conversion.
	ImpliedExchangeRates map[string]decimal.Decimal `json:"impliedExchangeRates,omitempty"`
	LocalAmount          *LocalAmount               `json:"localAmount,omitempty"`
}

// FeeAmount is a rendered fee.
type FeeAmount struct {
	Type   chain.FeeKind `json:"type"`
	Amount Amount        `json:"amount"`
}

// Metadata carries display information for the counterparty.
type Metadata struct {
	Comment string `json:"comment,omitempty"`
	Title   string `json:"title,omitempty"`
	Image   string `json:"image,omitempty"`
}

// Nft is a single non-fungible leg.
type Nft struct {
	TokenAddress string `json:"tokenAddress"`
	TokenID      string `json:"tokenId"`
	From         string `json:"from"`
	To           string `json:"to"`
}

// Event is either a transfer, an exchange, or an NFT event depending on Type.
type Event struct {
	Type            Type      `json:"type"`
	Timestamp       time.Time `json:"timestamp"`
	Block           uint64    `json:"block"`
	TransactionHash string    `json:"transactionHash"`

	Address  string    `json:"address,omitempty"`
	Account  string    `json:"account,omitempty"`
	Amount   *Amount   `json:"amount,omitempty"`
	Metadata *Metadata `json:"metadata,omitempty"`

	InAmount  *Amount          `json:"inAmount,omitempty"`
	OutAmount *Amount          `json:"outAmount,omitempty"`
	Rate      *decimal.Decimal `json:"rate,omitempty"`

	Nfts []Nft `json:"nfts,omitempty"`

	Fees []FeeAmount `json:"fees,omitempty"`
}

// IsExchange reports whether the event carries two legs.
func (e *Event) IsExchange() bool {
	return e.InAmount != nil && e.OutAmount != nil
}

// Amounts returns every amount that can be converted to a local currency.
func (e *Event) Amounts() []*Amount {
	out := make([]*Amount, 0, 3+len(e.Fees))
	for _, a := range []*Amount{e.Amount, e.InAmount, e.OutAmount} {
		if a != nil {
			out = append(out, a)
		}
	}
	for i := range e.Fees {
		out = append(out, &e.Fees[i].Amount)
	}
	return out
}
