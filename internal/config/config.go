package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"celo-ledger/internal/chain"
	"celo-ledger/internal/events"
	"celo-ledger/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App            AppConfig                     `mapstructure:"app"`
	Logging        logging.Config                `mapstructure:"logging"`
	Database       DatabaseConfig                `mapstructure:"database"`
	Scheduler      SchedulerConfig               `mapstructure:"scheduler"`
	Celo           CeloConfig                    `mapstructure:"celo"`
	Tokens         TokensConfig                  `mapstructure:"tokens"`
	Blockscout     BlockscoutConfig              `mapstructure:"blockscout"`
	ExchangeRates  ExchangeRatesConfig           `mapstructure:"exchange_rates"`
	Cache          CacheConfig                   `mapstructure:"cache"`
	Prices         PricesConfig                  `mapstructure:"prices"`
	Pipeline       PipelineConfig                `mapstructure:"pipeline"`
	Metrics        MetricsConfig                 `mapstructure:"metrics"`
	Alerting       AlertingConfig                `mapstructure:"alerting"`
	Export         ExportConfig                  `mapstructure:"export"`
	KnownAddresses map[string]events.DisplayInfo `mapstructure:"known_addresses"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
	ApplicationName string        `mapstructure:"application_name"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
}

// SchedulerConfig governs the price ingestion cadence.
type SchedulerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	AlignToBucket   bool          `mapstructure:"align_to_bucket"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
}

// CeloConfig covers node access and the core contract table.
type CeloConfig struct {
	RPCURL          string        `mapstructure:"rpc_url"`
	RegistryAddress string        `mapstructure:"registry_address"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	FaucetAddress   string        `mapstructure:"faucet_address"`
	// Contracts pins addresses by registry name. Missing names are looked up
	// on the Registry contract when an RPC URL is configured.
	Contracts map[string]string `mapstructure:"contracts"`
}

// TokensConfig describes the tokens the ledger reports on.
type TokensConfig struct {
	Native    string           `mapstructure:"native"`
	Stable    []string         `mapstructure:"stable"`
	Requested []string         `mapstructure:"requested"`
	Decimals  map[string]int32 `mapstructure:"decimals"`
	// Pegs maps stable tokens to the fiat currency they track.
	Pegs          map[string]string `mapstructure:"pegs"`
	LocalCurrency string            `mapstructure:"local_currency"`
}

// BlockscoutConfig captures explorer connectivity.
type BlockscoutConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	PageSize       int           `mapstructure:"page_size"`
	Attempts       int           `mapstructure:"attempts"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// ExchangeRatesConfig captures the fiat rate API.
type ExchangeRatesConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	AccessKey      string        `mapstructure:"access_key"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// CacheConfig sizes the exchange-rate caches. Redis is skipped when no
// address is set.
type CacheConfig struct {
	Size          int    `mapstructure:"size"`
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	RedisPrefix   string `mapstructure:"redis_prefix"`
}

// PricesConfig configures estimation and ingestion of token prices.
type PricesConfig struct {
	ReferenceToken    string        `mapstructure:"reference_token"`
	ReferenceCurrency string        `mapstructure:"reference_currency"`
	NativeTokenAddr   string        `mapstructure:"native_token_address"`
	ExchangeAddress   string        `mapstructure:"exchange_address"`
	MaxGap            time.Duration `mapstructure:"max_gap"`
	FetchedFrom       string        `mapstructure:"fetched_from"`
}

// PipelineConfig bounds event construction fan-out.
type PipelineConfig struct {
	Concurrency int `mapstructure:"concurrency"`
}

// MetricsConfig toggles the Prometheus listener.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// AlertingConfig routes price ingestion failures.
type AlertingConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Cooldown time.Duration  `mapstructure:"cooldown"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig describes the Telegram bot used for alerts.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CELOLEDGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "celo-ledger")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.service", "celo-ledger")

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("database.application_name", "celo-ledger")
	v.SetDefault("database.connect_timeout", "5s")

	v.SetDefault("scheduler.interval", "10m")
	v.SetDefault("scheduler.align_to_bucket", true)
	v.SetDefault("scheduler.advisory_lock_key", int64(0x63656c6f))
	v.SetDefault("scheduler.startup_delay", "0s")

	v.SetDefault("celo.rpc_url", "https://forno.celo.org")
	v.SetDefault("celo.registry_address", chain.RegistryAddress)
	v.SetDefault("celo.request_timeout", "10s")

	v.SetDefault("tokens.native", "CELO")
	v.SetDefault("tokens.stable", []string{"cUSD", "cEUR", "cREAL"})
	v.SetDefault("tokens.pegs", map[string]string{"cusd": "USD", "ceur": "EUR", "creal": "BRL"})
	v.SetDefault("tokens.requested", []string{})
	v.SetDefault("tokens.local_currency", "USD")

	v.SetDefault("blockscout.base_url", "https://explorer.celo.org/mainnet/api/v1")
	v.SetDefault("blockscout.page_size", 100)
	v.SetDefault("blockscout.attempts", 3)
	v.SetDefault("blockscout.request_timeout", "30s")
	v.SetDefault("blockscout.user_agent", "celo-ledger/1.0")

	v.SetDefault("exchange_rates.base_url", "https://api.exchangerate.host")
	v.SetDefault("exchange_rates.access_key", "")
	v.SetDefault("exchange_rates.request_timeout", "10s")
	v.SetDefault("exchange_rates.user_agent", "celo-ledger/1.0")

	v.SetDefault("cache.size", 1024)
	v.SetDefault("cache.redis_prefix", "celo-ledger:rates:")

	v.SetDefault("prices.reference_currency", "cUSD")
	v.SetDefault("prices.max_gap", "4h")
	v.SetDefault("prices.fetched_from", "mento")

	v.SetDefault("pipeline.concurrency", 8)

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", ":9102")

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.cooldown", "30m")
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("export.max_data_points", 100000)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Prices.MaxGap <= 0 {
		return fmt.Errorf("prices.max_gap must be greater than zero")
	}
	if c.Pipeline.Concurrency <= 0 {
		return fmt.Errorf("pipeline.concurrency must be greater than zero")
	}
	if c.Cache.Size <= 0 {
		return fmt.Errorf("cache.size must be greater than zero")
	}
	if c.Tokens.Native == "" {
		return fmt.Errorf("tokens.native is required")
	}
	for token, d := range c.Tokens.Decimals {
		if d < 0 || d > 36 {
			return fmt.Errorf("tokens.decimals.%s out of range: %d", token, d)
		}
	}
	for name := range c.Celo.Contracts {
		if _, ok := contractName(name); !ok {
			return fmt.Errorf("celo.contracts: unknown contract %q", name)
		}
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token is required")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id is required")
		}
	}
	return nil
}

// ContractAddresses returns the pinned contract table. Keys are matched to
// registry names case-insensitively since viper lower-cases map keys.
func (c *Config) ContractAddresses() chain.ContractAddresses {
	pinned := make(map[chain.Contract]string, len(c.Celo.Contracts))
	for key, addr := range c.Celo.Contracts {
		if name, ok := contractName(key); ok {
			pinned[name] = addr
		}
	}
	return chain.NewContractAddresses(pinned)
}

// KnownAddressMap returns the display directory of well-known addresses.
func (c *Config) KnownAddressMap() events.KnownAddressMap {
	return events.NewKnownAddressMap(c.KnownAddresses)
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}

func contractName(key string) (chain.Contract, bool) {
	for _, name := range chain.AllContracts {
		if strings.EqualFold(string(name), key) {
			return name, true
		}
	}
	return "", false
}
