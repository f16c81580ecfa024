package classifier

import (
	"celo-ledger/internal/chain"
)

// Aggregated is a transaction ready for event construction. Fees holds the
// fees of any fee-only transaction folded into it followed by its own.
type Aggregated struct {
	Transaction *chain.Transaction
	Kind        Kind
	Fees        []chain.Fee
}

// Aggregated wraps a classified transaction on its own, with only its own
// fees. Incoming transactions carry none.
func (c Classified) Aggregated() Aggregated {
	if c.Kind.Incoming() {
		return Aggregated{Transaction: c.Transaction, Kind: c.Kind}
	}
	return Aggregated{Transaction: c.Transaction, Kind: c.Kind, Fees: FeesFor(c.Kind, c.Transaction)}
}

// FeesFor returns the fees a transaction contributes under the given kind.
// Account DEK registrations collapse into a single one-time encryption fee.
func FeesFor(kind Kind, tx *chain.Transaction) []chain.Fee {
	fees := tx.Fees()
	if kind != RegisterAccountDek || len(fees) == 0 {
		return fees
	}
	return []chain.Fee{{
		Kind:     chain.OneTimeEncryptionFee,
		Value:    chain.SumFees(fees),
		Currency: fees[0].Currency,
	}}
}

// Aggregate scans classified transactions in order. An aggregatable
// transaction is held until the next transaction the user pays for, which
// inherits its fees. Incoming transactions pass through without fees and
// leave the held fees in place. When the next paid transaction is
// aggregatable too, the held fees carry forward with it. A held transaction
// at the end of the scan is dropped.
func Aggregate(classified []Classified) []Aggregated {
	out := make([]Aggregated, 0, len(classified))
	var pending []chain.Fee
	holding := false

	for _, c := range classified {
		if c.Kind.Incoming() {
			out = append(out, Aggregated{Transaction: c.Transaction, Kind: c.Kind})
			continue
		}

		fees := FeesFor(c.Kind, c.Transaction)
		if holding {
			merged := make([]chain.Fee, 0, len(pending)+len(fees))
			merged = append(merged, pending...)
			fees = append(merged, fees...)
			pending, holding = nil, false
		}

		if c.Kind.Aggregatable() {
			pending, holding = fees, true
			continue
		}

		out = append(out, Aggregated{Transaction: c.Transaction, Kind: c.Kind, Fees: fees})
	}

	return out
}
