package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceSample is one stored observation of Token priced in BaseToken.
type PriceSample struct {
	ID          int64
	Token       string
	BaseToken   string
	Price       decimal.Decimal
	At          time.Time
	FetchedFrom string
}
