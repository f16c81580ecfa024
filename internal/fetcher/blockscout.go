package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"celo-ledger/internal/chain"
	"celo-ledger/internal/metrics"
)

const transfersQuery = `query Transfers($address: AddressHash!, $first: Int!) {
  tokenTransferTxs(addressHash: $address, first: $first) {
    edges {
      node {
        transactionHash
        blockNumber
        timestamp
        gasPrice
        gasUsed
        feeToken
        gatewayFee
        gatewayFeeRecipient
        input
        tokenTransfer(first: 10) {
          edges {
            node {
              fromAddressHash
              toAddressHash
              fromAccountHash
              toAccountHash
              value
              token
              tokenAddress
              tokenType
            }
          }
        }
      }
    }
  }
}`

// BlockscoutOptions parameterise the explorer client.
type BlockscoutOptions struct {
	BaseURL   string
	PageSize  int
	Attempts  int
	Timeout   time.Duration
	UserAgent string
}

// Blockscout reads token transfer transactions from the explorer GraphQL API.
type Blockscout struct {
	opts     BlockscoutOptions
	logger   zerolog.Logger
	client   *http.Client
	endpoint string
	metrics  *metrics.Metrics
}

// NewBlockscout constructs the explorer client. m may be nil.
func NewBlockscout(opts BlockscoutOptions, m *metrics.Metrics, logger zerolog.Logger) *Blockscout {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.PageSize <= 0 {
		opts.PageSize = 100
	}
	if opts.Attempts <= 0 {
		opts.Attempts = 3
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://explorer.celo.org/mainnet/api/v1"
	}

	return &Blockscout{
		opts:     opts,
		logger:   logger.With().Str("component", "blockscout").Logger(),
		client:   &http.Client{Timeout: opts.Timeout},
		endpoint: baseURL + "/graphql",
		metrics:  m,
	}
}

// FetchTransactions returns the latest transactions of address, oldest first.
func (b *Blockscout) FetchTransactions(ctx context.Context, address string) ([]chain.RawTransaction, error) {
	if address == "" {
		return nil, errors.New("address required")
	}

	started := time.Now()
	defer func() { b.metrics.ObserveRawTransactions(time.Since(started)) }()

	body, err := json.Marshal(graphQLRequest{
		Query: transfersQuery,
		Variables: map[string]any{
			"address": strings.ToLower(address),
			"first":   b.opts.PageSize,
		},
	})
	if err != nil {
		return nil, err
	}

	var res transfersResponse
	err = retryWithBackoff(ctx, b.opts.Attempts, b.logger, func() error {
		return b.post(ctx, body, &res)
	})
	if err != nil {
		return nil, fmt.Errorf("query blockscout: %w", err)
	}
	if len(res.Errors) > 0 {
		return nil, fmt.Errorf("blockscout graphql error: %s", res.Errors[0].Message)
	}

	edges := res.Data.TokenTransferTxs.Edges
	out := make([]chain.RawTransaction, 0, len(edges))
	// The explorer lists newest first; aggregation needs chronological order.
	for i := len(edges) - 1; i >= 0; i-- {
		node := edges[i].Node
		raw := chain.RawTransaction{
			TransactionHash:     node.TransactionHash,
			BlockNumber:         node.BlockNumber,
			Timestamp:           node.Timestamp,
			GasPrice:            node.GasPrice,
			GasUsed:             node.GasUsed,
			FeeToken:            node.FeeToken,
			GatewayFee:          node.GatewayFee,
			GatewayFeeRecipient: node.GatewayFeeRecipient,
			Input:               node.Input,
			Transfers:           make([]chain.RawTransfer, 0, len(node.TokenTransfer.Edges)),
		}
		for _, te := range node.TokenTransfer.Edges {
			raw.Transfers = append(raw.Transfers, te.Node)
		}
		out = append(out, raw)
	}

	b.logger.Debug().Str("address", address).Int("transactions", len(out)).Msg("raw transactions fetched")
	return out, nil
}

func (b *Blockscout) post(ctx context.Context, body []byte, out *transfersResponse) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint, bytes.NewReader(body))
	if err != nil {
		return permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(b.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", "celo-ledger/1.0")
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
		return parseHTTPError("blockscout", resp.StatusCode, payload)
	}
	if resp.StatusCode != http.StatusOK {
		return permanent(parseHTTPError("blockscout", resp.StatusCode, payload))
	}

	*out = transfersResponse{}
	if err := json.Unmarshal(payload, out); err != nil {
		return permanent(fmt.Errorf("decode blockscout response: %w", err))
	}
	return nil
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type transfersResponse struct {
	Data struct {
		TokenTransferTxs struct {
			Edges []struct {
				Node transferTxNode `json:"node"`
			} `json:"edges"`
		} `json:"tokenTransferTxs"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

type transferTxNode struct {
	TransactionHash     string `json:"transactionHash"`
	BlockNumber         uint64 `json:"blockNumber"`
	Timestamp           string `json:"timestamp"`
	GasPrice            string `json:"gasPrice"`
	GasUsed             string `json:"gasUsed"`
	FeeToken            string `json:"feeToken"`
	GatewayFee          string `json:"gatewayFee"`
	GatewayFeeRecipient string `json:"gatewayFeeRecipient"`
	Input               string `json:"input"`
	TokenTransfer       struct {
		Edges []struct {
			Node chain.RawTransfer `json:"node"`
		} `json:"edges"`
	} `json:"tokenTransfer"`
}

var _ TransactionSource = (*Blockscout)(nil)
