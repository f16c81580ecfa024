package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"celo-ledger/internal/alerting"
	"celo-ledger/internal/chain"
	"celo-ledger/internal/config"
	"celo-ledger/internal/currency"
	"celo-ledger/internal/fetcher"
	"celo-ledger/internal/metrics"
	"celo-ledger/internal/prices"
	"celo-ledger/internal/service"
	"celo-ledger/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config  *config.Config
	Logger  zerolog.Logger
	Metrics *metrics.Metrics
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{
		Config:  cfg,
		Logger:  logger.With().Str("component", "app").Logger(),
		Metrics: metrics.New(),
	}
}

func (a *App) newNode() *fetcher.Celo {
	return fetcher.NewCelo(fetcher.CeloOptions{
		RPCURL:          a.Config.Celo.RPCURL,
		RegistryAddress: a.Config.Celo.RegistryAddress,
		Timeout:         a.Config.Celo.RequestTimeout,
	}, a.Logger)
}

// newResolver returns nil when no node is configured, in which case every
// required contract must be pinned in config.
func (a *App) newResolver() fetcher.ContractResolver {
	if a.Config.Celo.RPCURL == "" {
		return nil
	}
	return a.newNode()
}

func (a *App) newSource(file string) fetcher.TransactionSource {
	if file != "" {
		return fetcher.NewFileSource(file)
	}
	cfg := a.Config.Blockscout
	return fetcher.NewBlockscout(fetcher.BlockscoutOptions{
		BaseURL:   cfg.BaseURL,
		PageSize:  cfg.PageSize,
		Attempts:  cfg.Attempts,
		Timeout:   cfg.RequestTimeout,
		UserAgent: cfg.UserAgent,
	}, a.Metrics, a.Logger)
}

func (a *App) newRateCache() (currency.RateCache, func(), error) {
	lru, err := currency.NewLRUCache(a.Config.Cache.Size)
	if err != nil {
		return nil, nil, err
	}
	if a.Config.Cache.RedisAddr == "" {
		return lru, func() {}, nil
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    strings.Split(a.Config.Cache.RedisAddr, ","),
		Password: a.Config.Cache.RedisPassword,
		DB:       a.Config.Cache.RedisDB,
	})
	closer := func() {
		if err := client.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("close redis client")
		}
	}
	return currency.NewTieredCache(lru, currency.NewRedisCache(client, a.Config.Cache.RedisPrefix)), closer, nil
}

func (a *App) newConverter() (*currency.Converter, func(), error) {
	cache, closeCache, err := a.newRateCache()
	if err != nil {
		return nil, nil, err
	}
	cfg := a.Config.ExchangeRates
	api := fetcher.NewExchangeRateAPI(fetcher.ExchangeRateOptions{
		BaseURL:   cfg.BaseURL,
		AccessKey: cfg.AccessKey,
		Timeout:   cfg.RequestTimeout,
		UserAgent: cfg.UserAgent,
	}, a.Metrics, a.Logger)
	converter := currency.NewConverter(currency.Options{Pegs: a.Config.Tokens.Pegs}, api, cache, a.Logger)
	return converter, closeCache, nil
}

func (a *App) newNotifier() alerting.Notifier {
	if !a.Config.Alerting.Enabled || !a.Config.Alerting.Telegram.Enabled {
		return nil
	}
	cfg := a.Config.Alerting.Telegram
	telegram := alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger)
	return alerting.NewThrottled(telegram, a.Config.Alerting.Cooldown)
}

// openStore returns a nil store when no DSN is configured.
func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	if a.Config.Database.AutoMigrate {
		if err := store.Migrate(ctx); err != nil {
			store.Close()
			return nil, nil, err
		}
	}
	return store, store.Close, nil
}

// requireStore is openStore for commands that cannot run without a database.
func (a *App) requireStore(ctx context.Context, action string) (*storage.Store, func(), error) {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	if store == nil {
		return nil, nil, fmt.Errorf("database not configured; cannot %s", action)
	}
	return store, closeStore, nil
}

// pricePair resolves the token and base token addresses of the price series.
type pricePair struct {
	Token     string
	BaseToken string
	Exchange  string
}

func (a *App) resolvePricePair(contracts chain.ContractAddresses) (pricePair, error) {
	cfg := a.Config.Prices
	pair := pricePair{Token: cfg.NativeTokenAddr, BaseToken: cfg.ReferenceToken, Exchange: cfg.ExchangeAddress}
	if pair.Token == "" {
		pair.Token, _ = contracts.Address(chain.GoldToken)
	}
	if pair.BaseToken == "" {
		pair.BaseToken, _ = contracts.Address(chain.StableToken)
	}
	if pair.Exchange == "" {
		pair.Exchange, _ = contracts.Address(chain.Exchange)
	}
	if pair.Token == "" || pair.BaseToken == "" {
		return pricePair{}, errors.New("price pair unresolved: set prices.native_token_address and prices.reference_token")
	}
	return pair, nil
}

// ledgerHandle bundles a ledger with the resources it holds open.
type ledgerHandle struct {
	ledger *service.Ledger
	close  func()
}

// newLedger wires the event pipeline. Without a database the price series
// is empty and only pegged or exchanged amounts get local values.
func (a *App) newLedger(ctx context.Context, sourceFile string) (*ledgerHandle, error) {
	converter, closeCache, err := a.newConverter()
	if err != nil {
		return nil, err
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		closeCache()
		return nil, err
	}
	var samples storage.SampleReader = storage.NewMemoryStore()
	if store != nil {
		samples = store
	} else {
		a.Logger.Warn().Msg("database.dsn not configured; price series unavailable")
	}

	contracts, err := service.LoadContracts(ctx, a.newResolver(), a.Config.ContractAddresses())
	if err != nil {
		closeCache()
		if closeStore != nil {
			closeStore()
		}
		return nil, err
	}

	pair, err := a.resolvePricePair(contracts)
	if err != nil {
		a.Logger.Warn().Err(err).Msg("price series lookups disabled")
	}

	priceService := prices.NewService(prices.Options{
		ReferenceToken:    pair.BaseToken,
		ReferenceCurrency: a.Config.Prices.ReferenceCurrency,
		MaxGap:            a.Config.Prices.MaxGap,
	}, samples, converter, a.Logger)

	tokenAddresses := map[string]string{}
	if pair.Token != "" {
		tokenAddresses[a.Config.Tokens.Native] = pair.Token
	}
	if pair.BaseToken != "" && len(a.Config.Tokens.Stable) > 0 {
		tokenAddresses[a.Config.Tokens.Stable[0]] = pair.BaseToken
	}

	tokens := a.Config.Tokens
	ledger := service.NewLedger(service.LedgerOptions{
		NativeToken:    tokens.Native,
		StableTokens:   tokens.Stable,
		Tokens:         tokens.Requested,
		Decimals:       tokens.Decimals,
		FaucetAddress:  a.Config.Celo.FaucetAddress,
		LocalCurrency:  tokens.LocalCurrency,
		TokenAddresses: tokenAddresses,
		Concurrency:    a.Config.Pipeline.Concurrency,
	}, a.newSource(sourceFile), nil, contracts, a.Config.KnownAddressMap(), converter, priceService, a.Metrics, a.Logger)

	return &ledgerHandle{
		ledger: ledger,
		close: func() {
			closeCache()
			if closeStore != nil {
				closeStore()
			}
		},
	}, nil
}

// ExportOptions hold parameters for exporting the price series.
type ExportOptions struct {
	Token     string
	BaseToken string
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show-prices command.
type ShowOptions struct {
	Limit int
}

// EventsOptions configure the events command.
type EventsOptions struct {
	Address       string
	LocalCurrency string
	File          string
	Pretty        bool
}

// PriceOptions configure the price command.
type PriceOptions struct {
	Token         string
	LocalCurrency string
	At            time.Time
}

// UpdateOptions configure the update-prices command.
type UpdateOptions struct {
	Once bool
}
