// =================================
// File: internal/config/config.go
// =================================
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/rovshanmuradov/fairlaunch/internal/graduation"
	"github.com/rovshanmuradov/fairlaunch/internal/pricing"
)

const EnvPrefix = "FAIRLAUNCH"

type Config struct {
	ProgramID                   string        `mapstructure:"program_id"`
	AMMProgramID                string        `mapstructure:"amm_program_id"`
	FeeBps                      uint16        `mapstructure:"fee_bps"`
	GraduationThresholdLamports uint64        `mapstructure:"graduation_threshold_lamports"`
	GraduationMarketCapUSD      string        `mapstructure:"graduation_market_cap_usd"`
	BasePriceUSD                string        `mapstructure:"base_price_usd"`
	SupplyFactor                string        `mapstructure:"supply_factor"`
	MigrationFeeBps             uint16        `mapstructure:"migration_fee_bps"`
	SeedBaseLamports            uint64        `mapstructure:"seed_base_lamports"`
	FeeDestination              string        `mapstructure:"fee_destination"`
	ResidualDestination         string        `mapstructure:"residual_destination"`
	MigrationNonce              uint8         `mapstructure:"migration_nonce"`
	PGDSN                       string        `mapstructure:"pg_dsn"`
	MigrationRetries            uint          `mapstructure:"migration_retries"`
	RetryDelay                  time.Duration `mapstructure:"retry_delay"`
	Workers                     int           `mapstructure:"workers"`
	EventBuffer                 int           `mapstructure:"event_buffer"`
	LogLevel                    string        `mapstructure:"log_level"`
	LogFile                     string        `mapstructure:"log_file"`
	Journal                     string        `mapstructure:"journal"`
	MetricsAddr                 string        `mapstructure:"metrics_addr"`

	Program  solana.PublicKey `mapstructure:"-"`
	AMM      solana.PublicKey `mapstructure:"-"`
	FeeDest  solana.PublicKey `mapstructure:"-"`
	Residual solana.PublicKey `mapstructure:"-"`
}

const (
	DefaultProgramID        = "6fDcuCmcBiJepAQkboGpVC4icLbeSMX88UMTwNDLGM5z"
	DefaultAMMProgramID     = "675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8"
	DefaultFeeBps           = 100
	DefaultMarketCapUSD     = "5000"
	DefaultBasePriceUSD     = "150"
	DefaultSupplyFactor     = "1000000"
	DefaultMigrationFeeBps  = 500
	DefaultSeedBaseLamports = 30_000_000_000
	DefaultMigrationRetries = 3
	DefaultRetryDelay       = 500 * time.Millisecond
	DefaultWorkers          = 2
	DefaultEventBuffer      = 1024
	DefaultLogLevel         = "info"
)

// Load собирает конфигурацию из файла, окружения и флагов.
// Пустой path ищет config.{json,yaml} в текущем каталоге; отсутствие файла не ошибка.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	defaults := map[string]interface{}{
		"program_id":                    DefaultProgramID,
		"amm_program_id":                DefaultAMMProgramID,
		"fee_bps":                       DefaultFeeBps,
		"graduation_threshold_lamports": 0,
		"graduation_market_cap_usd":     DefaultMarketCapUSD,
		"base_price_usd":                DefaultBasePriceUSD,
		"supply_factor":                 DefaultSupplyFactor,
		"migration_fee_bps":             DefaultMigrationFeeBps,
		"seed_base_lamports":            DefaultSeedBaseLamports,
		"fee_destination":               "",
		"residual_destination":          "",
		"migration_nonce":               0,
		"pg_dsn":                        "",
		"migration_retries":             DefaultMigrationRetries,
		"retry_delay":                   DefaultRetryDelay,
		"workers":                       DefaultWorkers,
		"event_buffer":                  DefaultEventBuffer,
		"log_level":                     DefaultLogLevel,
		"log_file":                      "",
		"journal":                       "",
		"metrics_addr":                  "",
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if flags != nil {
		if err := bindFlags(v, flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, cfg.Validate()
}

// bindFlags maps kebab-case flags onto snake_case keys.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	var bindErr error
	flags.VisitAll(func(f *pflag.Flag) {
		if bindErr != nil {
			return
		}
		key := strings.ReplaceAll(f.Name, "-", "_")
		bindErr = v.BindPFlag(key, f)
	})
	return bindErr
}

// Validate проверяет значения и разбирает адреса.
func (c *Config) Validate() error {
	var err error
	if c.Program, err = parseKey("program_id", c.ProgramID, true); err != nil {
		return err
	}
	if c.AMM, err = parseKey("amm_program_id", c.AMMProgramID, true); err != nil {
		return err
	}
	if c.FeeDest, err = parseKey("fee_destination", c.FeeDestination, false); err != nil {
		return err
	}
	if c.Residual, err = parseKey("residual_destination", c.ResidualDestination, false); err != nil {
		return err
	}
	if c.FeeBps > pricing.BasisPoints {
		return errors.New("invalid fee_bps")
	}
	if c.MigrationFeeBps > pricing.BasisPoints {
		return errors.New("invalid migration_fee_bps")
	}
	if c.EventBuffer <= 0 {
		return errors.New("invalid event_buffer")
	}
	if c.Workers <= 0 {
		return errors.New("invalid workers count")
	}
	if c.RetryDelay < 0 {
		return errors.New("invalid retry_delay")
	}
	if _, err := c.Policy(); err != nil {
		return err
	}
	return nil
}

// Policy builds the graduation policy from the configured thresholds.
func (c *Config) Policy() (graduation.Policy, error) {
	marketCap, err := parseDecimal("graduation_market_cap_usd", c.GraduationMarketCapUSD)
	if err != nil {
		return graduation.Policy{}, err
	}
	basePrice, err := parseDecimal("base_price_usd", c.BasePriceUSD)
	if err != nil {
		return graduation.Policy{}, err
	}
	supply, err := parseDecimal("supply_factor", c.SupplyFactor)
	if err != nil {
		return graduation.Policy{}, err
	}
	p := graduation.Policy{
		ThresholdBase:   c.GraduationThresholdLamports,
		MarketCapUSD:    marketCap,
		BasePriceUSD:    basePrice,
		SupplyFactor:    supply,
		SeedBase:        c.SeedBaseLamports,
		MigrationFeeBps: c.MigrationFeeBps,
	}
	if err := p.Validate(); err != nil {
		return graduation.Policy{}, fmt.Errorf("graduation: %w", err)
	}
	return p, nil
}

// Watcher returns the graduation watcher settings.
func (c *Config) Watcher() graduation.Config {
	return graduation.Config{
		Workers:    c.Workers,
		QueueSize:  c.EventBuffer,
		MaxRetries: c.MigrationRetries,
		RetryDelay: c.RetryDelay,
		Nonce:      c.MigrationNonce,
	}
}

func parseKey(name, value string, required bool) (solana.PublicKey, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		if required {
			return solana.PublicKey{}, fmt.Errorf("missing %s in configuration", name)
		}
		return solana.PublicKey{}, nil
	}
	key, err := solana.PublicKeyFromBase58(value)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("invalid %s: %w", name, err)
	}
	return key, nil
}

func parseDecimal(name, value string) (decimal.Decimal, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s: %w", name, err)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("invalid %s: negative", name)
	}
	return d, nil
}
