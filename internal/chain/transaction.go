package chain

import (
	"time"

	"github.com/shopspring/decimal"
)

// FeeKind labels what a fee paid for.
type FeeKind string

const (
	SecurityFee          FeeKind = "SECURITY_FEE"
	GatewayFee           FeeKind = "GATEWAY_FEE"
	OneTimeEncryptionFee FeeKind = "ONE_TIME_ENCRYPTION_FEE"
	InvitationFee        FeeKind = "INVITATION_FEE"
)

// Fee is an amount in minor units of Currency.
type Fee struct {
	Kind     FeeKind
	Value    decimal.Decimal
	Currency string
}

// SumFees adds fee values regardless of kind. Callers must only sum fees of one currency.
func SumFees(fees []Fee) decimal.Decimal {
	total := decimal.Zero
	for _, f := range fees {
		total = total.Add(f.Value)
	}
	return total
}

// Transaction is one upstream record. It is never mutated once decoded.
type Transaction struct {
	Hash                string
	BlockNumber         uint64
	Timestamp           time.Time
	GasPrice            decimal.Decimal
	GasUsed             decimal.Decimal
	FeeToken            string
	GatewayFee          decimal.Decimal
	GatewayFeeRecipient string
	Comment             string
	Transfers           TransferCollection
	Input               Input

	nativeToken string
}

// Fees derives the security and gateway fees paid by the sender.
func (t *Transaction) Fees() []Fee {
	currency := t.FeeToken
	if currency == "" {
		currency = t.nativeToken
	}

	fees := make([]Fee, 0, 2)
	security := t.GasPrice.Mul(t.GasUsed)
	if security.IsPositive() {
		fees = append(fees, Fee{Kind: SecurityFee, Value: security, Currency: currency})
	}
	if t.GatewayFeeRecipient != "" && t.GatewayFee.IsPositive() {
		fees = append(fees, Fee{Kind: GatewayFee, Value: t.GatewayFee, Currency: currency})
	}
	return fees
}
