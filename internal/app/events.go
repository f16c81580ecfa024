package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"celo-ledger/internal/events"
)

// Events prints the event history of an account as JSON.
func (a *App) Events(ctx context.Context, opts EventsOptions) error {
	if opts.Address == "" {
		return errors.New("address is required")
	}

	handle, err := a.newLedger(ctx, opts.File)
	if err != nil {
		return err
	}
	defer handle.close()

	evs, err := handle.ledger.Events(ctx, opts.Address, opts.LocalCurrency)
	if err != nil {
		return err
	}
	a.Logger.Info().Str("address", opts.Address).Int("events", len(evs)).Msg("events built")
	return writeEvents(os.Stdout, evs, opts.Pretty)
}

func writeEvents(w io.Writer, evs []*events.Event, pretty bool) error {
	if evs == nil {
		evs = []*events.Event{}
	}
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(evs); err != nil {
		return fmt.Errorf("encode events: %w", err)
	}
	return nil
}

// Price prints the estimated price of one token unit in a local currency.
func (a *App) Price(ctx context.Context, opts PriceOptions) error {
	if opts.Token == "" {
		opts.Token = a.Config.Tokens.Native
	}
	handle, err := a.newLedger(ctx, "")
	if err != nil {
		return err
	}
	defer handle.close()

	price, err := handle.ledger.EstimateLocalPrice(ctx, opts.Token, opts.LocalCurrency, opts.At)
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stdout, price.String())
	return nil
}
