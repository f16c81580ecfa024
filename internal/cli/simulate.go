package cli

import (
	"errors"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"celo-ledger/internal/app"
)

var (
	simulatePrice   string
	simulateFailure string
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-update",
	Short: "Run one price ingestion tick with a static quote",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.SimulateOptions{Failure: simulateFailure}
		if simulateFailure == "" {
			if simulatePrice == "" {
				return errors.New("--price or --fail must be provided")
			}
			price, err := decimal.NewFromString(simulatePrice)
			if err != nil {
				return err
			}
			opts.Price = price
		}
		return getApp().SimulateUpdate(cmd.Context(), opts)
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulatePrice, "price", "", "Quoted native token price in the reference token")
	simulateCmd.Flags().StringVar(&simulateFailure, "fail", "", "Fail the quote with this message and dispatch an alert")
}
