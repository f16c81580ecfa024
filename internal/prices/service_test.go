package prices

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"celo-ledger/internal/currency"
	"celo-ledger/internal/storage"
)

const (
	celo = "0xcelo"
	cusd = "0xcusd"
)

type fixedRate struct {
	rate decimal.Decimal
	err  error
	seen []currency.Request
}

func (f *fixedRate) GetExchangeRate(_ context.Context, req currency.Request) (decimal.Decimal, error) {
	f.seen = append(f.seen, req)
	if f.err != nil {
		return decimal.Decimal{}, f.err
	}
	return f.rate, nil
}

func ms(v int64) time.Time { return time.UnixMilli(v).UTC() }

const sixHours = int64(6 * time.Hour / time.Millisecond)

func newTestService(rate *fixedRate) *Service {
	sample := func(price, at int64) storage.PriceSample {
		return storage.PriceSample{Token: celo, BaseToken: cusd, Price: decimal.NewFromInt(price), At: ms(at)}
	}
	store := storage.NewMemoryStore(
		sample(64000, 0),
		sample(60000, 10000),
		sample(62000, 20000),
		sample(58000, 30000),
		sample(10000, sixHours+30000),
		sample(12000, sixHours+40000),
	)
	return NewService(Options{ReferenceToken: cusd, ReferenceCurrency: "cUSD"}, store, rate, zerolog.Nop())
}

func TestInterpolatedPrices(t *testing.T) {
	svc := newTestService(&fixedRate{rate: decimal.NewFromInt(1)})
	cases := map[int64]int64{
		0:                64000,
		5000:             62000,
		7500:             61000,
		12500:            60500,
		15000:            61000,
		30000:            58000,
		sixHours + 35000: 11000,
	}
	for at, want := range cases {
		got, err := svc.GetTokenToLocalCurrencyPrice(context.Background(), celo, "USD", ms(at))
		require.NoError(t, err, "at %d", at)
		assert.True(t, got.Equal(decimal.NewFromInt(want)), "at %d: got %s want %d", at, got, want)
	}
}

func TestPriceGapTooLarge(t *testing.T) {
	svc := newTestService(&fixedRate{rate: decimal.NewFromInt(1)})
	_, err := svc.GetTokenToLocalCurrencyPrice(context.Background(), celo, "USD", ms(100000))
	require.ErrorIs(t, err, ErrPriceGapTooLarge)
}

func TestPriceNotFound(t *testing.T) {
	svc := newTestService(&fixedRate{rate: decimal.NewFromInt(1)})

	_, err := svc.GetTokenToLocalCurrencyPrice(context.Background(), celo, "USD", ms(sixHours+45000))
	require.ErrorIs(t, err, ErrPriceNotFound)

	_, err = svc.GetTokenToLocalCurrencyPrice(context.Background(), celo, "USD", ms(-1))
	require.ErrorIs(t, err, ErrPriceNotFound)

	_, err = svc.GetTokenToLocalCurrencyPrice(context.Background(), "0xunknown", "USD", ms(5000))
	require.ErrorIs(t, err, ErrPriceNotFound)
}

func TestLocalCurrencyConversion(t *testing.T) {
	rate := &fixedRate{rate: decimal.RequireFromString("1.2")}
	svc := newTestService(rate)

	got, err := svc.GetTokenToLocalCurrencyPrice(context.Background(), celo, "EUR", ms(0))
	require.NoError(t, err)
	assert.True(t, got.Equal(decimal.NewFromInt(76800)), got.String())
	require.Len(t, rate.seen, 1)
	assert.Equal(t, "cUSD", rate.seen[0].Source)
	assert.Equal(t, "EUR", rate.seen[0].Target)
}

func TestExternalRateFailureIsHard(t *testing.T) {
	svc := newTestService(&fixedRate{err: errors.New("api down")})
	_, err := svc.GetTokenToLocalCurrencyPrice(context.Background(), celo, "EUR", ms(0))
	require.ErrorIs(t, err, ErrExternalRateLookupFailed)
}

func TestReferenceTokenPricesAtPar(t *testing.T) {
	svc := newTestService(&fixedRate{rate: decimal.RequireFromString("0.9")})
	got, err := svc.GetTokenToLocalCurrencyPrice(context.Background(), "0xCUSD", "EUR", ms(123))
	require.NoError(t, err)
	assert.True(t, got.Equal(decimal.RequireFromString("0.9")))
}

func TestInterpolateCoincidingSamples(t *testing.T) {
	s := storage.PriceSample{Price: decimal.NewFromInt(7), At: ms(10)}
	assert.True(t, Interpolate(s, s, ms(10)).Equal(decimal.NewFromInt(7)))
}

func TestInterpolateKeepsFullPrecision(t *testing.T) {
	prev := storage.PriceSample{Price: decimal.NewFromInt(1), At: ms(0)}
	next := storage.PriceSample{Price: decimal.NewFromInt(2), At: ms(3000)}

	got := Interpolate(prev, next, ms(1000))
	assert.Equal(t, "1.333333333333333333333333333333333333", got.String())

	exact := Interpolate(prev, next, ms(1500))
	assert.Equal(t, "1.5", exact.String())
}
