package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"celo-ledger/internal/app"
)

var (
	eventsAddress  string
	eventsCurrency string
	eventsFile     string
	eventsPretty   bool

	priceToken    string
	priceCurrency string
	priceAt       string
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Print the normalized event history of an account",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Events(cmd.Context(), app.EventsOptions{
			Address:       eventsAddress,
			LocalCurrency: eventsCurrency,
			File:          eventsFile,
			Pretty:        eventsPretty,
		})
	},
}

var priceCmd = &cobra.Command{
	Use:   "price",
	Short: "Estimate the local currency price of one token unit",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.PriceOptions{
			Token:         priceToken,
			LocalCurrency: priceCurrency,
			At:            time.Now().UTC(),
		}
		if priceAt != "" {
			at, err := time.Parse(time.RFC3339, priceAt)
			if err != nil {
				return fmt.Errorf("invalid --at value: %w", err)
			}
			opts.At = at
		}
		return getApp().Price(cmd.Context(), opts)
	},
}

func init() {
	eventsCmd.Flags().StringVar(&eventsAddress, "address", "", "Account address")
	eventsCmd.Flags().StringVar(&eventsCurrency, "currency", "", "Local currency code (defaults to config)")
	eventsCmd.Flags().StringVar(&eventsFile, "file", "", "Read raw transfers from a JSON file instead of the explorer")
	eventsCmd.Flags().BoolVar(&eventsPretty, "pretty", false, "Indent JSON output")
	_ = eventsCmd.MarkFlagRequired("address")

	priceCmd.Flags().StringVar(&priceToken, "token", "", "Token symbol or address (defaults to the native token)")
	priceCmd.Flags().StringVar(&priceCurrency, "currency", "", "Local currency code (defaults to config)")
	priceCmd.Flags().StringVar(&priceAt, "at", "", "Timestamp (RFC3339, defaults to now)")
}
