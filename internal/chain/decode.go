package chain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// ErrInvalidRecord marks an upstream record that cannot be decoded.
var ErrInvalidRecord = errors.New("chain: invalid transaction record")

// RawTransfer mirrors a token transfer node returned by the block explorer.
type RawTransfer struct {
	FromAddressHash string `json:"fromAddressHash" validate:"required"`
	ToAddressHash   string `json:"toAddressHash" validate:"required"`
	FromAccountHash string `json:"fromAccountHash"`
	ToAccountHash   string `json:"toAccountHash"`
	Token           string `json:"token"`
	TokenAddress    string `json:"tokenAddress"`
	TokenType       string `json:"tokenType" validate:"omitempty,oneof=ERC-20 ERC-721"`
	Value           string `json:"value" validate:"required,numeric"`
}

// RawTransaction mirrors a transaction node returned by the block explorer.
type RawTransaction struct {
	TransactionHash     string        `json:"transactionHash" validate:"required"`
	BlockNumber         uint64        `json:"blockNumber"`
	Timestamp           string        `json:"timestamp" validate:"required"`
	GasPrice            string        `json:"gasPrice" validate:"omitempty,numeric"`
	GasUsed             string        `json:"gasUsed" validate:"omitempty,numeric"`
	FeeToken            string        `json:"feeToken"`
	GatewayFee          string        `json:"gatewayFee" validate:"omitempty,numeric"`
	GatewayFeeRecipient string        `json:"gatewayFeeRecipient"`
	Input               string        `json:"input"`
	Comment             string        `json:"comment"`
	Transfers           []RawTransfer `json:"transfers" validate:"dive"`
}

// Env is the load-once configuration a decoded transaction is bound to.
type Env struct {
	Contracts     ContractAddresses
	FaucetAddress string
	NativeToken   string
}

// Decoder turns raw explorer records into transactions.
type Decoder struct {
	env      Env
	validate *validator.Validate
}

// NewDecoder builds a decoder bound to env.
func NewDecoder(env Env) *Decoder {
	return &Decoder{env: env, validate: validator.New()}
}

// Decode validates and converts a single record.
func (d *Decoder) Decode(raw RawTransaction) (*Transaction, error) {
	if err := d.validate.Struct(raw); err != nil {
		return nil, fmt.Errorf("%w %s: %v", ErrInvalidRecord, raw.TransactionHash, err)
	}

	ts, err := parseTimestamp(raw.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("%w %s: %v", ErrInvalidRecord, raw.TransactionHash, err)
	}

	gasPrice, err := parseAmount(raw.GasPrice)
	if err != nil {
		return nil, fmt.Errorf("%w %s: gas price: %v", ErrInvalidRecord, raw.TransactionHash, err)
	}
	gasUsed, err := parseAmount(raw.GasUsed)
	if err != nil {
		return nil, fmt.Errorf("%w %s: gas used: %v", ErrInvalidRecord, raw.TransactionHash, err)
	}
	gatewayFee, err := parseAmount(raw.GatewayFee)
	if err != nil {
		return nil, fmt.Errorf("%w %s: gateway fee: %v", ErrInvalidRecord, raw.TransactionHash, err)
	}

	transfers := make([]Transfer, 0, len(raw.Transfers))
	for i, rt := range raw.Transfers {
		value, err := parseAmount(rt.Value)
		if err != nil {
			return nil, fmt.Errorf("%w %s: transfer %d: %v", ErrInvalidRecord, raw.TransactionHash, i, err)
		}
		kind := TokenKind(rt.TokenType)
		if kind == "" {
			kind = Fungible
		}
		transfers = append(transfers, Transfer{
			FromAddress:  strings.ToLower(rt.FromAddressHash),
			ToAddress:    strings.ToLower(rt.ToAddressHash),
			FromAccount:  strings.ToLower(rt.FromAccountHash),
			ToAccount:    strings.ToLower(rt.ToAccountHash),
			Token:        rt.Token,
			TokenAddress: strings.ToLower(rt.TokenAddress),
			Value:        value,
			Kind:         kind,
		})
	}

	return &Transaction{
		Hash:                raw.TransactionHash,
		BlockNumber:         raw.BlockNumber,
		Timestamp:           ts,
		GasPrice:            gasPrice,
		GasUsed:             gasUsed,
		FeeToken:            raw.FeeToken,
		GatewayFee:          gatewayFee,
		GatewayFeeRecipient: strings.ToLower(raw.GatewayFeeRecipient),
		Comment:             raw.Comment,
		Transfers:           NewTransferCollection(transfers, d.env.Contracts, d.env.FaucetAddress),
		Input:               ParseInput(raw.Input, d.env.Contracts),
		nativeToken:         d.env.NativeToken,
	}, nil
}

func parseAmount(v string) (decimal.Decimal, error) {
	if v == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if d.IsNegative() || !d.Equal(d.Truncate(0)) {
		return decimal.Decimal{}, fmt.Errorf("amount %q must be a non-negative integer", v)
	}
	return d, nil
}

// parseTimestamp accepts RFC3339 strings and unix seconds.
func parseTimestamp(v string) (time.Time, error) {
	if secs, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}
	ts, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("timestamp %q: %w", v, err)
	}
	return ts.UTC(), nil
}
