package events

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"celo-ledger/internal/chain"
	"celo-ledger/internal/classifier"
)

const defaultDecimals int32 = 18

var (
	// ErrUnknownTransactionType is returned for transactions no registry entry recognised.
	ErrUnknownTransactionType = errors.New("events: unknown transaction type")
	// ErrMissingExpectedTransfer is returned when a classified transaction lacks the leg its kind requires.
	ErrMissingExpectedTransfer = errors.New("events: missing expected transfer")
)

// Recorder is notified about unrecognised transactions.
type Recorder interface {
	UnknownTransaction()
}

// Options configures a Builder.
type Options struct {
	UserAddress string
	// Tokens is the requested token set, by symbol or address. Empty means all.
	Tokens       []string
	NativeToken  string
	StableTokens []string
	// Decimals overrides the default 18 decimals per token symbol or address.
	Decimals  map[string]int32
	Contracts chain.ContractAddresses
}

// Builder turns aggregated transactions into user-facing events.
type Builder struct {
	user      string
	tokens    map[string]struct{}
	native    string
	stables   map[string]struct{}
	decimals  map[string]int32
	contracts chain.ContractAddresses
	known     KnownAddresses
	recorder  Recorder
}

// NewBuilder creates a builder. known and recorder may be nil.
func NewBuilder(opts Options, known KnownAddresses, recorder Recorder) *Builder {
	if known == nil {
		known = KnownAddressMap{}
	}
	b := &Builder{
		user:      strings.ToLower(opts.UserAddress),
		tokens:    lowerSet(opts.Tokens),
		native:    strings.ToLower(opts.NativeToken),
		stables:   lowerSet(opts.StableTokens),
		decimals:  make(map[string]int32, len(opts.Decimals)),
		contracts: opts.Contracts,
		known:     known,
		recorder:  recorder,
	}
	for token, d := range opts.Decimals {
		b.decimals[strings.ToLower(token)] = d
	}
	return b
}

// Build renders one aggregated transaction. A nil event with a nil error means
// the transaction produces nothing for the requested tokens.
func (b *Builder) Build(agg classifier.Aggregated) (*Event, error) {
	tx := agg.Transaction
	transfers := tx.Transfers

	switch agg.Kind {
	case classifier.Verification:
		t, ok := transfers.GetTransferTo(string(chain.Attestations))
		if !ok {
			return nil, b.missing(agg)
		}
		return b.transferEvent(tx, VerificationFee, t, t.ToAddress, t.ToAccount, agg.Fees), nil
	case classifier.EscrowSent:
		t, ok := transfers.GetTransferTo(string(chain.Escrow))
		if !ok {
			return nil, b.missing(agg)
		}
		return b.transferEvent(tx, EscrowSent, t, t.ToAddress, t.ToAccount, agg.Fees), nil
	case classifier.TokenSent:
		t, ok := transfers.GetTransferFrom(b.user)
		if !ok {
			return nil, b.missing(agg)
		}
		return b.transferEvent(tx, Sent, t, t.ToAddress, t.ToAccount, agg.Fees), nil
	case classifier.Faucet:
		t, ok := transfers.GetFaucetTransfer()
		if !ok {
			return nil, b.missing(agg)
		}
		return b.transferEvent(tx, Faucet, t, t.FromAddress, t.FromAccount, agg.Fees), nil
	case classifier.EscrowReceived:
		t, ok := transfers.GetTransferFrom(string(chain.Escrow))
		if !ok {
			return nil, b.missing(agg)
		}
		return b.transferEvent(tx, EscrowReceived, t, t.FromAddress, t.FromAccount, agg.Fees), nil
	case classifier.TokenReceived:
		t, ok := transfers.GetTransferTo(b.user)
		if !ok {
			return nil, b.missing(agg)
		}
		return b.transferEvent(tx, Received, t, t.FromAddress, t.FromAccount, agg.Fees), nil
	case classifier.ExchangeCeloToToken:
		in, okIn := transfers.GetTransferToAny(chain.ExchangeContracts)
		out, okOut := transfers.GetMintedTokenTransfer()
		if !okIn || !okOut {
			return nil, b.missing(agg)
		}
		return b.exchangeEvent(tx, Exchange, in, out, true, agg.Fees), nil
	case classifier.ExchangeTokenToCelo:
		in, okIn := transfers.GetTransferToAny(chain.ExchangeContracts)
		if !okIn {
			in, okIn = transfers.GetBurnedTokenTransfer()
		}
		out, okOut := transfers.GetTransferFrom(string(chain.Reserve))
		if !okIn || !okOut {
			return nil, b.missing(agg)
		}
		return b.exchangeEvent(tx, Exchange, in, out, true, agg.Fees), nil
	case classifier.Swap:
		// The in leg is the last transfer, which reaches the user. The out
		// leg is the first one, which the user gave away.
		out, okOut := transfers.First()
		in, okIn := transfers.Last()
		if !okIn || !okOut {
			return nil, b.missing(agg)
		}
		return b.exchangeEvent(tx, SwapTransaction, in, out, false, agg.Fees), nil
	case classifier.NftSent:
		return b.nftEvent(tx, NftSent, agg.Fees), nil
	case classifier.NftReceived:
		return b.nftEvent(tx, NftReceived, agg.Fees), nil
	case classifier.Any:
		if b.recorder != nil {
			b.recorder.UnknownTransaction()
		}
		return nil, fmt.Errorf("%w: %s", ErrUnknownTransactionType, tx.Hash)
	default:
		// Fee-only kinds never reach the builder after aggregation.
		return nil, nil
	}
}

func (b *Builder) missing(agg classifier.Aggregated) error {
	return fmt.Errorf("%w: %s in %s", ErrMissingExpectedTransfer, agg.Kind, agg.Transaction.Hash)
}

// transferEvent renders a single-leg event. The amount is negative exactly
// when the user paid fees for it.
func (b *Builder) transferEvent(tx *chain.Transaction, typ Type, t chain.Transfer, address, account string, fees []chain.Fee) *Event {
	if !b.requested(t) {
		return nil
	}

	amount := b.amount(tx, t)
	if len(fees) > 0 {
		amount.Value = amount.Value.Neg()
	}

	if account == "" {
		account = address
	}
	info := b.known.GetDisplayInfoFor(address)
	return &Event{
		Type:            typ,
		Timestamp:       tx.Timestamp,
		Block:           tx.BlockNumber,
		TransactionHash: tx.Hash,
		Address:         address,
		Account:         account,
		Amount:          &amount,
		Metadata: &Metadata{
			Comment: tx.Comment,
			Title:   info.Name,
			Image:   info.ImageURL,
		},
		Fees: b.formatFees(tx, fees),
	}
}

// exchangeEvent renders a two-leg event. inGiven tells which leg left the
// user's account. Both legs are unsigned and Rate is out over in.
func (b *Builder) exchangeEvent(tx *chain.Transaction, typ Type, in, out chain.Transfer, inGiven bool, fees []chain.Fee) *Event {
	useOut, ok := b.primaryLeg(in, out)
	if !ok {
		return nil
	}

	inAmount := b.amount(tx, in)
	outAmount := b.amount(tx, out)

	rates := b.impliedRates(in, inAmount.Value, out, outAmount.Value)
	inAmount.ImpliedExchangeRates = rates
	outAmount.ImpliedExchangeRates = rates

	rate := decimal.Zero
	if !inAmount.Value.IsZero() {
		rate = outAmount.Value.Div(inAmount.Value)
	}

	// The primary amount is negative when it is the leg the user gave.
	primary := inAmount
	if useOut {
		primary = outAmount
	}
	if useOut != inGiven {
		primary.Value = primary.Value.Neg()
	}

	return &Event{
		Type:            typ,
		Timestamp:       tx.Timestamp,
		Block:           tx.BlockNumber,
		TransactionHash: tx.Hash,
		Amount:          &primary,
		InAmount:        &inAmount,
		OutAmount:       &outAmount,
		Rate:            &rate,
		Fees:            b.formatFees(tx, fees),
	}
}

// primaryLeg picks the leg that represents the event for the requested
// tokens and reports whether it is the out leg. When both match, the
// non-native leg wins. ok is false when neither leg was requested.
func (b *Builder) primaryLeg(in, out chain.Transfer) (useOut, ok bool) {
	inOK, outOK := b.requested(in), b.requested(out)
	switch {
	case inOK && outOK:
		return b.isNative(in) && !b.isNative(out), true
	case inOK:
		return false, true
	case outOK:
		return true, true
	default:
		return false, false
	}
}

func (b *Builder) nftEvent(tx *chain.Transaction, typ Type, fees []chain.Fee) *Event {
	nfts := make([]Nft, 0)
	for _, t := range tx.Transfers.All() {
		if !t.IsNFT() {
			continue
		}
		if !strings.EqualFold(t.FromAddress, b.user) && !strings.EqualFold(t.ToAddress, b.user) {
			continue
		}
		nfts = append(nfts, Nft{
			TokenAddress: t.TokenAddress,
			TokenID:      t.Value.String(),
			From:         t.FromAddress,
			To:           t.ToAddress,
		})
	}
	return &Event{
		Type:            typ,
		Timestamp:       tx.Timestamp,
		Block:           tx.BlockNumber,
		TransactionHash: tx.Hash,
		Nfts:            nfts,
		Fees:            b.formatFees(tx, fees),
	}
}

// impliedRates records the realised native/stable price of an exchange.
func (b *Builder) impliedRates(in chain.Transfer, inValue decimal.Decimal, out chain.Transfer, outValue decimal.Decimal) map[string]decimal.Decimal {
	if inValue.IsZero() || outValue.IsZero() {
		return nil
	}

	var native, stable chain.Transfer
	var nativeValue, stableValue decimal.Decimal
	switch {
	case b.isNative(in) && b.isStable(out):
		native, nativeValue, stable, stableValue = in, inValue, out, outValue
	case b.isStable(in) && b.isNative(out):
		native, nativeValue, stable, stableValue = out, outValue, in, inValue
	default:
		return nil
	}

	return map[string]decimal.Decimal{
		tokenLabel(native) + "/" + tokenLabel(stable): stableValue.Div(nativeValue),
		tokenLabel(stable) + "/" + tokenLabel(native): nativeValue.Div(stableValue),
	}
}

// tokenLabel prefers the symbol; explorers omit it for some transfers.
func tokenLabel(t chain.Transfer) string {
	if t.Token != "" {
		return t.Token
	}
	return t.TokenAddress
}

func (b *Builder) formatFees(tx *chain.Transaction, fees []chain.Fee) []FeeAmount {
	if len(fees) == 0 {
		return nil
	}
	out := make([]FeeAmount, 0, len(fees))
	for _, f := range fees {
		out = append(out, FeeAmount{
			Type: f.Kind,
			Amount: Amount{
				Value:     f.Value.Shift(-b.decimalsOf(f.Currency)),
				Token:     f.Currency,
				Timestamp: tx.Timestamp,
			},
		})
	}
	return out
}

func (b *Builder) amount(tx *chain.Transaction, t chain.Transfer) Amount {
	dec := b.decimalsOf(t.Token)
	if d, ok := b.decimals[t.TokenAddress]; ok {
		dec = d
	}
	return Amount{
		Value:        t.Value.Shift(-dec),
		Token:        t.Token,
		TokenAddress: t.TokenAddress,
		Timestamp:    tx.Timestamp,
	}
}

func (b *Builder) decimalsOf(token string) int32 {
	if d, ok := b.decimals[strings.ToLower(token)]; ok {
		return d
	}
	return defaultDecimals
}

func (b *Builder) requested(t chain.Transfer) bool {
	if len(b.tokens) == 0 {
		return true
	}
	_, bySymbol := b.tokens[strings.ToLower(t.Token)]
	_, byAddress := b.tokens[t.TokenAddress]
	return bySymbol || byAddress
}

func (b *Builder) isNative(t chain.Transfer) bool {
	if b.native != "" && strings.EqualFold(t.Token, b.native) {
		return true
	}
	addr, ok := b.contracts.Address(chain.GoldToken)
	return ok && t.TokenAddress == addr
}

func (b *Builder) isStable(t chain.Transfer) bool {
	if _, ok := b.stables[strings.ToLower(t.Token)]; ok {
		return true
	}
	addr, ok := b.contracts.Address(chain.StableToken)
	return ok && t.TokenAddress == addr
}

func lowerSet(items []string) map[string]struct{} {
	out := make(map[string]struct{}, len(items))
	for _, s := range items {
		if s == "" {
			continue
		}
		out[strings.ToLower(s)] = struct{}{}
	}
	return out
}
