package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"celo-ledger/internal/chain"
	"celo-ledger/internal/config"
	"celo-ledger/internal/events"
	"celo-ledger/internal/storage"
)

func testConfig() *config.Config {
	return &config.Config{
		Scheduler: config.SchedulerConfig{Interval: 10 * time.Minute},
		Tokens:    config.TokensConfig{Native: "CELO", Stable: []string{"cUSD"}},
		Prices:    config.PricesConfig{ReferenceCurrency: "USD", FetchedFrom: "mento"},
	}
}

func samplesEvery(n int, step time.Duration) []storage.PriceSample {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	out := make([]storage.PriceSample, n)
	for i := range out {
		out[i] = storage.PriceSample{
			Token:       "0xgold",
			BaseToken:   "0xusd",
			Price:       decimal.NewFromInt(int64(i + 1)),
			At:          start.Add(time.Duration(i) * step),
			FetchedFrom: "mento",
		}
	}
	return out
}

func TestDownsampleSamplesKeepsEndpoints(t *testing.T) {
	samples := samplesEvery(100, time.Minute)

	got := downsampleSamples(samples, 10)
	require.Len(t, got, 10)
	assert.Equal(t, samples[0].At, got[0].At)
	assert.Equal(t, samples[99].At, got[9].At)
	for i := 1; i < len(got); i++ {
		assert.True(t, got[i].At.After(got[i-1].At))
	}

	assert.Len(t, downsampleSamples(samples, 0), 100)
	assert.Len(t, downsampleSamples(samples[:5], 10), 5)
	assert.Equal(t, samples[99].At, downsampleSamples(samples, 1)[0].At)
}

func TestWriteSamplesCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeSamplesCSV(&buf, samplesEvery(2, time.Hour)))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "timestamp,token,base_token,price,fetched_from", lines[0])
	assert.Equal(t, "2024-03-01T00:00:00Z,0xgold,0xusd,1,mento", lines[1])
	assert.Equal(t, "2024-03-01T01:00:00Z,0xgold,0xusd,2,mento", lines[2])
}

func TestWriteSamplesTable(t *testing.T) {
	var buf bytes.Buffer
	samples := samplesEvery(1, time.Hour)
	samples[0].Token = "0x471ece3750da237f93b8e339c536989b8978a438"

	require.NoError(t, writeSamplesTable(&buf, samples, 7))
	out := buf.String()
	assert.Contains(t, out, "0x471e…a438")
	assert.Contains(t, out, "1.000000")
	assert.Contains(t, out, "showing 1 of 7 samples")

	buf.Reset()
	require.NoError(t, writeSamplesTable(&buf, nil, 0))
	assert.Equal(t, "no samples found\n", buf.String())
}

func TestWriteEventsEmitsArray(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeEvents(&buf, nil, false))
	assert.Equal(t, "[]\n", buf.String())

	buf.Reset()
	evs := []*events.Event{{Type: events.Received, TransactionHash: "0xabc"}}
	require.NoError(t, writeEvents(&buf, evs, true))

	var decoded []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded, 1)
	assert.Equal(t, "0xabc", decoded[0]["transactionHash"])
	assert.Equal(t, "RECEIVED", decoded[0]["type"])
	assert.Contains(t, buf.String(), "\n  ")
}

func TestResolvePricePair(t *testing.T) {
	a := NewApp(testConfig(), zerolog.Nop())
	contracts := chain.NewContractAddresses(map[chain.Contract]string{
		chain.GoldToken:   "0xGold",
		chain.StableToken: "0xUsd",
		chain.Exchange:    "0xExchange",
	})

	pair, err := a.resolvePricePair(contracts)
	require.NoError(t, err)
	assert.Equal(t, "0xgold", pair.Token)
	assert.Equal(t, "0xusd", pair.BaseToken)
	assert.Equal(t, "0xexchange", pair.Exchange)

	a.Config.Prices.NativeTokenAddr = "0xpinned"
	pair, err = a.resolvePricePair(contracts)
	require.NoError(t, err)
	assert.Equal(t, "0xpinned", pair.Token)

	_, err = a.resolvePricePair(chain.NewContractAddresses(nil))
	require.Error(t, err)
}

func TestStoreCommandsRequireDatabase(t *testing.T) {
	a := NewApp(testConfig(), zerolog.Nop())
	ctx := context.Background()

	require.ErrorContains(t, a.Show(ctx, ShowOptions{Limit: 5}), "database not configured")
	require.ErrorContains(t, a.Purge(ctx, "mento"), "database not configured")
	require.ErrorContains(t, a.Export(ctx, ExportOptions{CSVPath: "out.csv"}), "database not configured")
	require.ErrorContains(t, a.Export(ctx, ExportOptions{}), "--csv or --png")
}

func TestSimulateUpdateDispatchesFailureAlert(t *testing.T) {
	var body []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/bottoken/sendMessage", r.URL.Path)
		body, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.Alerting = config.AlertingConfig{
		Enabled:  true,
		Cooldown: time.Minute,
		Telegram: config.TelegramConfig{Enabled: true, BotToken: "token", ChatID: "42", APIBase: server.URL},
	}
	a := NewApp(cfg, zerolog.Nop())

	require.NoError(t, a.SimulateUpdate(context.Background(), SimulateOptions{Failure: "exchange unreachable"}))
	require.NotEmpty(t, body)
	assert.Contains(t, string(body), "exchange unreachable")
}

func TestSimulateUpdateValidatesInput(t *testing.T) {
	a := NewApp(testConfig(), zerolog.Nop())

	require.Error(t, a.SimulateUpdate(context.Background(), SimulateOptions{Price: decimal.Zero}))
	require.ErrorContains(t, a.SimulateUpdate(context.Background(), SimulateOptions{Failure: "boom"}), "no alert channel")
	require.NoError(t, a.SimulateUpdate(context.Background(), SimulateOptions{Price: decimal.RequireFromString("0.55")}))
}
