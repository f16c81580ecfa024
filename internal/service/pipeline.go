package service

import (
	"context"
	"errors"
	"sort"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"celo-ledger/internal/chain"
	"celo-ledger/internal/classifier"
	"celo-ledger/internal/events"
)

const defaultConcurrency = 8

// PipelineOptions configures event construction for one account.
type PipelineOptions struct {
	Env         chain.Env
	Builder     events.Options
	Concurrency int
}

// Pipeline decodes, classifies, aggregates and renders the transactions of
// one account.
type Pipeline struct {
	decoder     *chain.Decoder
	classifier  *classifier.Classifier
	builder     *events.Builder
	concurrency int
	logger      zerolog.Logger
}

// NewPipeline builds a pipeline. known and recorder may be nil.
func NewPipeline(opts PipelineOptions, known events.KnownAddresses, recorder events.Recorder, logger zerolog.Logger) *Pipeline {
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}
	if opts.Builder.Contracts == nil {
		opts.Builder.Contracts = opts.Env.Contracts
	}
	return &Pipeline{
		decoder:     chain.NewDecoder(opts.Env),
		classifier:  classifier.New(opts.Builder.UserAddress),
		builder:     events.NewBuilder(opts.Builder, known, recorder),
		concurrency: opts.Concurrency,
		logger:      logger.With().Str("component", "pipeline").Logger(),
	}
}

// ClassifyAndBuildEvents turns raw records, oldest first, into events sorted
// newest first. Records that fail to decode or render are logged and dropped.
func (p *Pipeline) ClassifyAndBuildEvents(ctx context.Context, raw []chain.RawTransaction) ([]*events.Event, error) {
	txs := make([]*chain.Transaction, 0, len(raw))
	for _, r := range raw {
		tx, err := p.decoder.Decode(r)
		if err != nil {
			p.logger.Warn().Err(err).
				Str("type", "ERROR_DECODING_TRANSACTION").
				Str("tx_hash", r.TransactionHash).
				Msg("dropping malformed transaction")
			continue
		}
		txs = append(txs, tx)
	}

	aggregated := classifier.Aggregate(p.classifier.ClassifyAll(txs))

	built := make([]*events.Event, len(aggregated))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for i, agg := range aggregated {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			ev, err := p.builder.Build(agg)
			if err != nil {
				p.logBuildFailure(agg, err)
				return nil
			}
			built[i] = ev
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]*events.Event, 0, len(built))
	for _, ev := range built {
		if ev != nil {
			out = append(out, ev)
		}
	}
	SortEvents(out)
	return out, nil
}

func (p *Pipeline) logBuildFailure(agg classifier.Aggregated, err error) {
	entry := p.logger.Warn()
	if errors.Is(err, events.ErrUnknownTransactionType) {
		entry = p.logger.Info()
	}
	entry.Err(err).
		Str("type", "ERROR_MAPPING_TO_EVENT").
		Stringer("kind", agg.Kind).
		Str("tx_hash", agg.Transaction.Hash).
		Msg("dropping transaction")
}

// SortEvents orders events by timestamp, then block, newest first. The
// transaction hash breaks remaining ties.
func SortEvents(evs []*events.Event) {
	sort.SliceStable(evs, func(i, j int) bool {
		a, b := evs[i], evs[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.After(b.Timestamp)
		}
		if a.Block != b.Block {
			return a.Block > b.Block
		}
		return a.TransactionHash < b.TransactionHash
	})
}
