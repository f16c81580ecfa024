package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"celo-ledger/internal/chain"
)

// FileSource serves raw transactions from a JSON export of one account, in
// file order.
type FileSource struct {
	path string
}

func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

func (f *FileSource) FetchTransactions(ctx context.Context, address string) ([]chain.RawTransaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("read transactions file: %w", err)
	}

	var export struct {
		Address      string                 `json:"address"`
		Transactions []chain.RawTransaction `json:"transactions"`
	}
	if err := json.Unmarshal(data, &export); err != nil {
		return nil, fmt.Errorf("decode transactions file: %w", err)
	}
	if export.Address != "" && !strings.EqualFold(export.Address, address) {
		return nil, fmt.Errorf("transactions file belongs to %s, not %s", export.Address, address)
	}
	return export.Transactions, nil
}

var _ TransactionSource = (*FileSource)(nil)
