package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"celo-ledger/internal/metrics"
)

const historicalPath = "/historical"

// ErrRateUnavailable is returned when the API has no quote for the pair.
var ErrRateUnavailable = errors.New("exchange rate unavailable")

// ExchangeRateOptions parameterise the exchange rate API client.
type ExchangeRateOptions struct {
	BaseURL   string
	AccessKey string
	Timeout   time.Duration
	UserAgent string
}

// ExchangeRateAPI queries historical fiat quotes from an exchangerate.host style API.
type ExchangeRateAPI struct {
	opts    ExchangeRateOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
	metrics *metrics.Metrics
}

// NewExchangeRateAPI constructs the client. m may be nil.
func NewExchangeRateAPI(opts ExchangeRateOptions, m *metrics.Metrics, logger zerolog.Logger) *ExchangeRateAPI {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://apilayer.net/api"
	}

	return &ExchangeRateAPI{
		opts:    opts,
		logger:  logger.With().Str("component", "exchange_rate_api").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
		metrics: m,
	}
}

// FetchRate returns how many units of target one unit of source buys on date.
func (a *ExchangeRateAPI) FetchRate(ctx context.Context, source, target string, date time.Time) (decimal.Decimal, error) {
	if source == "" || target == "" {
		return decimal.Decimal{}, errors.New("source and target currency required")
	}

	started := time.Now()
	defer func() { a.metrics.ObserveExchangeRate(time.Since(started)) }()

	params := url.Values{}
	params.Set("access_key", a.opts.AccessKey)
	params.Set("date", date.UTC().Format(time.DateOnly))
	params.Set("source", source)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+historicalPath+"?"+params.Encode(), nil)
	if err != nil {
		return decimal.Decimal{}, err
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(a.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", "celo-ledger/1.0")
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return decimal.Decimal{}, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return decimal.Decimal{}, parseHTTPError("exchange rate api", resp.StatusCode, payload)
	}

	var res historicalResponse
	if err := json.Unmarshal(payload, &res); err != nil {
		return decimal.Decimal{}, fmt.Errorf("decode exchange rate response: %w", err)
	}
	if !res.Success {
		return decimal.Decimal{}, fmt.Errorf("invalid exchange rate response: %s", strings.TrimSpace(string(payload)))
	}

	quote, ok := res.Quotes[source+target]
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("%w: %s/%s on %s", ErrRateUnavailable, source, target, date.UTC().Format(time.DateOnly))
	}
	rate, err := decimal.NewFromString(quote.String())
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parse rate %s/%s: %w", source, target, err)
	}

	a.logger.Debug().Str("pair", source+"/"+target).Str("rate", rate.String()).Msg("exchange rate fetched")
	return rate, nil
}

type historicalResponse struct {
	Success bool                   `json:"success"`
	Source  string                 `json:"source"`
	Date    string                 `json:"date"`
	Quotes  map[string]json.Number `json:"quotes"`
}

type errorResponse struct {
	Error struct {
		Code int    `json:"code"`
		Info string `json:"info"`
		Type string `json:"type"`
	} `json:"error"`
	Message string `json:"message"`
}

func parseHTTPError(service string, status int, payload []byte) error {
	var apiErr errorResponse
	if err := json.Unmarshal(payload, &apiErr); err == nil {
		if apiErr.Error.Info != "" {
			return fmt.Errorf("%s error (%d): %s", service, status, apiErr.Error.Info)
		}
		if apiErr.Message != "" {
			return fmt.Errorf("%s error (%d): %s", service, status, apiErr.Message)
		}
		if apiErr.Error.Type != "" {
			return fmt.Errorf("%s error (%d): %s", service, status, apiErr.Error.Type)
		}
	}
	if len(payload) > 0 {
		return fmt.Errorf("%s error (%d): %s", service, status, strings.TrimSpace(string(payload)))
	}
	return fmt.Errorf("%s error (%d)", service, status)
}

var _ ExchangeRateFetcher = (*ExchangeRateAPI)(nil)
