package cli

import (
	"github.com/spf13/cobra"

	"celo-ledger/internal/app"
)

var updateOnce bool

var updateCmd = &cobra.Command{
	Use:   "update-prices",
	Short: "Record native token prices from the on-chain exchange",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().UpdatePrices(cmd.Context(), app.UpdateOptions{Once: updateOnce})
	},
}

var purgeSource string

var purgeCmd = &cobra.Command{
	Use:   "purge-prices",
	Short: "Delete recorded prices by source tag",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Purge(cmd.Context(), purgeSource)
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Migrate(cmd.Context())
	},
}

func init() {
	updateCmd.Flags().BoolVar(&updateOnce, "once", false, "Record a single sample and exit")

	purgeCmd.Flags().StringVar(&purgeSource, "source", "", "fetched_from tag to delete")
	_ = purgeCmd.MarkFlagRequired("source")
}
