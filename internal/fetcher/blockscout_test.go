package fetcher

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const blockscoutPayload = `{"data":{"tokenTransferTxs":{"edges":[
 {"node":{"transactionHash":"0x02","blockNumber":20,"timestamp":"2021-01-02T00:00:00Z","gasPrice":"1","gasUsed":"2","input":"0x",
  "tokenTransfer":{"edges":[{"node":{"fromAddressHash":"0xaa","toAddressHash":"0xbb","value":"5","token":"cUSD","tokenAddress":"0xcc"}}]}}},
 {"node":{"transactionHash":"0x01","blockNumber":10,"timestamp":"2021-01-01T00:00:00Z","gasPrice":"1","gasUsed":"2","input":"0x",
  "tokenTransfer":{"edges":[]}}}
]}}}`

func TestBlockscoutReturnsOldestFirst(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/graphql", r.URL.Path)
		var req graphQLRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "0xabc", req.Variables["address"])
		_, _ = w.Write([]byte(blockscoutPayload))
	}))
	defer srv.Close()

	b := NewBlockscout(BlockscoutOptions{BaseURL: srv.URL, Timeout: time.Second}, nil, noopLogger())
	txs, err := b.FetchTransactions(context.Background(), "0xABC")
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, "0x01", txs[0].TransactionHash)
	assert.Equal(t, "0x02", txs[1].TransactionHash)
	require.Len(t, txs[1].Transfers, 1)
	assert.Equal(t, "cUSD", txs[1].Transfers[0].Token)
}

func TestBlockscoutRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(blockscoutPayload))
	}))
	defer srv.Close()

	b := NewBlockscout(BlockscoutOptions{BaseURL: srv.URL, Attempts: 3}, nil, noopLogger())
	txs, err := b.FetchTransactions(context.Background(), "0xabc")
	require.NoError(t, err)
	assert.Len(t, txs, 2)
	assert.Equal(t, int32(2), calls.Load())
}

func TestBlockscoutDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	b := NewBlockscout(BlockscoutOptions{BaseURL: srv.URL, Attempts: 3}, nil, noopLogger())
	_, err := b.FetchTransactions(context.Background(), "0xabc")
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestBlockscoutGraphQLErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"errors":[{"message":"invalid address"}]}`))
	}))
	defer srv.Close()

	b := NewBlockscout(BlockscoutOptions{BaseURL: srv.URL}, nil, noopLogger())
	_, err := b.FetchTransactions(context.Background(), "0xabc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid address")
}

func TestFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "txs.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"address":"0xABC","transactions":[{"transactionHash":"0x01","timestamp":"1"}]}`), 0o600))

	txs, err := NewFileSource(path).FetchTransactions(context.Background(), "0xabc")
	require.NoError(t, err)
	require.Len(t, txs, 1)

	_, err = NewFileSource(path).FetchTransactions(context.Background(), "0xdef")
	require.Error(t, err)
}
