package currency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRates struct {
	rates map[string]decimal.Decimal
	calls int
	err   error
}

func (f *fakeRates) FetchRate(_ context.Context, source, target string, _ time.Time) (decimal.Decimal, error) {
	f.calls++
	if f.err != nil {
		return decimal.Decimal{}, f.err
	}
	rate, ok := f.rates[source+target]
	if !ok {
		return decimal.Decimal{}, errors.New("no quote")
	}
	return rate, nil
}

type recordingCache struct {
	RateCache
	ttls map[string]time.Duration
}

func (r *recordingCache) Set(ctx context.Context, key string, rate decimal.Decimal, ttl time.Duration) {
	r.ttls[key] = ttl
	r.RateCache.Set(ctx, key, rate, ttl)
}

func newTestConverter(t *testing.T, rates *fakeRates) (*Converter, *recordingCache) {
	t.Helper()
	lru, err := NewLRUCache(16)
	require.NoError(t, err)
	cache := &recordingCache{RateCache: lru, ttls: map[string]time.Duration{}}
	c := NewConverter(Options{Pegs: map[string]string{"cUSD": "USD", "cEUR": "EUR"}}, rates, cache, zerolog.Nop())
	c.now = func() time.Time { return time.Date(2021, 6, 10, 12, 0, 0, 0, time.UTC) }
	return c, cache
}

func TestConverterIdentityAndPegs(t *testing.T) {
	rates := &fakeRates{}
	c, _ := newTestConverter(t, rates)

	rate, err := c.GetExchangeRate(context.Background(), Request{Source: "USD", Target: "USD"})
	require.NoError(t, err)
	assert.True(t, rate.Equal(decimal.NewFromInt(1)))

	rate, err = c.GetExchangeRate(context.Background(), Request{Source: "cUSD", Target: "usd"})
	require.NoError(t, err)
	assert.True(t, rate.Equal(decimal.NewFromInt(1)))
	assert.Zero(t, rates.calls)
}

func TestConverterImpliedRateWins(t *testing.T) {
	rates := &fakeRates{rates: map[string]decimal.Decimal{"USDEUR": decimal.RequireFromString("0.8")}}
	c, _ := newTestConverter(t, rates)

	implied := map[string]decimal.Decimal{"cUSD/CELO": decimal.RequireFromString("0.4")}
	rate, err := c.GetExchangeRate(context.Background(), Request{Source: "cUSD", Target: "CELO", ImpliedRates: implied})
	require.NoError(t, err)
	assert.True(t, rate.Equal(decimal.RequireFromString("0.4")))
	assert.Zero(t, rates.calls)
}

func TestConverterCachesExternalRates(t *testing.T) {
	rates := &fakeRates{rates: map[string]decimal.Decimal{"USDEUR": decimal.RequireFromString("0.8")}}
	c, cache := newTestConverter(t, rates)

	old := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	recent := time.Date(2021, 6, 10, 6, 0, 0, 0, time.UTC)

	for i := 0; i < 2; i++ {
		rate, err := c.GetExchangeRate(context.Background(), Request{Source: "cUSD", Target: "EUR", At: old})
		require.NoError(t, err)
		assert.True(t, rate.Equal(decimal.RequireFromString("0.8")))
	}
	assert.Equal(t, 1, rates.calls)
	assert.Equal(t, time.Duration(0), cache.ttls["USD:EUR:2021-01-01"])

	_, err := c.GetExchangeRate(context.Background(), Request{Source: "USD", Target: "EUR", At: recent})
	require.NoError(t, err)
	assert.Equal(t, RecentRateTTL, cache.ttls["USD:EUR:2021-06-10"])
}

func TestConverterExternalFailureIsHard(t *testing.T) {
	c, _ := newTestConverter(t, &fakeRates{err: errors.New("down")})
	_, err := c.GetExchangeRate(context.Background(), Request{Source: "USD", Target: "EUR"})
	require.ErrorIs(t, err, ErrExternalRateLookupFailed)

	_, err = c.GetExchangeRate(context.Background(), Request{Source: "USD"})
	require.Error(t, err)
}
