package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const namespace = "celo_ledger"

// Metrics groups the collectors of one process. A nil *Metrics is a no-op.
type Metrics struct {
	registry *prometheus.Registry

	unknownTransactions prometheus.Counter
	rawTransactions     prometheus.Histogram
	exchangeRate        prometheus.Histogram
	localAmountFailures prometheus.Counter
	priceUpdates        *prometheus.CounterVec
}

// New registers all collectors on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		registry: reg,
		unknownTransactions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unknown_transactions_total",
			Help:      "Transactions no registry entry recognised.",
		}),
		rawTransactions: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "raw_transactions_duration_seconds",
			Help:      "Time spent fetching raw transactions from the explorer.",
			Buckets:   prometheus.DefBuckets,
		}),
		exchangeRate: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "exchange_rate_duration_seconds",
			Help:      "Time spent querying the exchange rate API.",
			Buckets:   prometheus.DefBuckets,
		}),
		localAmountFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "local_amount_failures_total",
			Help:      "Amounts left without a local currency value.",
		}),
		priceUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "price_updates_total",
			Help:      "Price ingestion runs by result.",
		}, []string{"result"}),
	}
	reg.MustRegister(m.unknownTransactions, m.rawTransactions, m.exchangeRate, m.localAmountFailures, m.priceUpdates)
	return m
}

func (m *Metrics) UnknownTransaction() {
	if m == nil {
		return
	}
	m.unknownTransactions.Inc()
}

func (m *Metrics) ObserveRawTransactions(d time.Duration) {
	if m == nil {
		return
	}
	m.rawTransactions.Observe(d.Seconds())
}

func (m *Metrics) ObserveExchangeRate(d time.Duration) {
	if m == nil {
		return
	}
	m.exchangeRate.Observe(d.Seconds())
}

func (m *Metrics) LocalAmountFailed() {
	if m == nil {
		return
	}
	m.localAmountFailures.Inc()
}

// PriceUpdate records the outcome of one ingestion run.
func (m *Metrics) PriceUpdate(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.priceUpdates.WithLabelValues(result).Inc()
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves /metrics and a readiness probe.
func (m *Metrics) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":    "UP",
			"checkTime": time.Now().UTC().Format(time.RFC3339),
		})
	})
	return mux
}

// Serve runs the metrics listener until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string, logger zerolog.Logger) error {
	log := logger.With().Str("component", "metrics").Logger()
	srv := &http.Server{Addr: addr, Handler: m.Handler(), ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("metrics listener started")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		log.Info().Msg("metrics listener shutting down")
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
