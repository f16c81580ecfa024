package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"celo-ledger/internal/storage"
)

// Show prints the most recent price samples.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.requireStore(ctx, "show samples")
	if err != nil {
		return err
	}
	defer closeStore()

	samples, err := store.ListRecentSamples(ctx, opts.Limit)
	if err != nil {
		return err
	}
	total, err := store.CountSamples(ctx)
	if err != nil {
		return err
	}
	return writeSamplesTable(os.Stdout, samples, total)
}

func writeSamplesTable(out io.Writer, samples []storage.PriceSample, total int64) error {
	if len(samples) == 0 {
		_, err := fmt.Fprintln(out, "no samples found")
		return err
	}

	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tToken\tBase\tPrice\tSource")
	for _, sample := range samples {
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\n",
			sample.At.UTC().Format(time.RFC3339),
			shortAddress(sample.Token),
			shortAddress(sample.BaseToken),
			sample.Price.StringFixed(6),
			sample.FetchedFrom,
		)
	}
	fmt.Fprintf(writer, "\nshowing %d of %d samples\n", len(samples), total)
	return writer.Flush()
}

func shortAddress(addr string) string {
	if len(addr) <= 12 {
		return addr
	}
	return addr[:6] + "…" + addr[len(addr)-4:]
}

// Purge deletes every sample recorded under the given fetched_from tag.
func (a *App) Purge(ctx context.Context, source string) error {
	store, closeStore, err := a.requireStore(ctx, "purge samples")
	if err != nil {
		return err
	}
	defer closeStore()

	removed, err := store.DeleteByFetchedFrom(ctx, source)
	if err != nil {
		return err
	}
	a.Logger.Info().Str("fetched_from", source).Int64("removed", removed).Msg("samples purged")
	fmt.Fprintf(os.Stdout, "removed %d samples\n", removed)
	return nil
}

// Migrate applies the schema.
func (a *App) Migrate(ctx context.Context) error {
	store, closeStore, err := a.requireStore(ctx, "migrate")
	if err != nil {
		return err
	}
	defer closeStore()

	if err := store.Migrate(ctx); err != nil {
		return err
	}
	a.Logger.Info().Msg("schema up to date")
	return nil
}
