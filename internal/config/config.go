package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config stores all configuration for the application.
// The values are read by viper from a config file or environment variables.
type Config struct {
	Server   ServerConfig
	Log      LogConfig
	Exchange ExchangeConfig
	Bot      BotConfig
	Database DatabaseConfig
	Stream   StreamConfig
}

// ServerConfig defines the HTTP listener settings.
type ServerConfig struct {
	Addr            string
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LogConfig defines the slog handler settings.
type LogConfig struct {
	Level  string
	Format string
}

// ExchangeConfig defines the exchange client settings.
type ExchangeConfig struct {
	Name       string
	BaseURL    string        `mapstructure:"base_url"`
	StreamURL  string        `mapstructure:"stream_url"`
	APIKey     string        `mapstructure:"api_key"`
	APISecret  string        `mapstructure:"api_secret"`
	TestOrders bool          `mapstructure:"test_orders"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// BotConfig defines the settings shared by every bot.
type BotConfig struct {
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	LookbackMargin int           `mapstructure:"lookback_margin"`
	PriceSource    string        `mapstructure:"price_source"`
	PersistRetries uint64        `mapstructure:"persist_retries"`
}

// DatabaseConfig defines the trade store settings.
type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string `mapstructure:"sslmode"`
}

// StreamConfig defines the live relay settings.
type StreamConfig struct {
	Buffer int
}

// Price sources for persisted trades.
const (
	PriceSourceLastClose = "last_close"
	PriceSourceFill      = "fill"
)

// Trade store drivers.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":5001")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("exchange.name", "binance")
	v.SetDefault("exchange.base_url", "https://testnet.binance.vision")
	v.SetDefault("exchange.stream_url", "wss://testnet.binance.vision")
	v.SetDefault("exchange.api_key", "")
	v.SetDefault("exchange.api_secret", "")
	v.SetDefault("exchange.test_orders", true)
	v.SetDefault("exchange.timeout", 10*time.Second)

	v.SetDefault("bot.poll_interval", 60*time.Second)
	v.SetDefault("bot.lookback_margin", 20)
	v.SetDefault("bot.price_source", PriceSourceLastClose)
	v.SetDefault("bot.persist_retries", 3)

	v.SetDefault("database.driver", DriverPostgres)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "tradebot")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "tradebot")
	v.SetDefault("database.sslmode", "disable")

	v.SetDefault("stream.buffer", 64)
}

// LoadConfig reads configuration from file or environment variables.
// A missing config file is not an error; defaults and environment apply.
func LoadConfig(path string) (config Config, err error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Credential names used by the exchange's own tooling.
	_ = v.BindEnv("exchange.api_key", "EXCHANGE_API_KEY", "BINANCE_API_KEY")
	_ = v.BindEnv("exchange.api_secret", "EXCHANGE_API_SECRET", "BINANCE_API_SECRET")

	if err = v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return
		}
		err = nil
	}

	if err = v.Unmarshal(&config); err != nil {
		return
	}
	err = config.Validate()
	return
}

// Validate rejects settings the engine cannot run with.
func (c Config) Validate() error {
	if c.Bot.PollInterval <= 0 {
		return fmt.Errorf("bot.poll_interval must be positive, got %s", c.Bot.PollInterval)
	}
	if c.Bot.LookbackMargin < 0 {
		return fmt.Errorf("bot.lookback_margin must not be negative, got %d", c.Bot.LookbackMargin)
	}
	switch c.Bot.PriceSource {
	case PriceSourceLastClose, PriceSourceFill:
	default:
		return fmt.Errorf("unknown bot.price_source %q", c.Bot.PriceSource)
	}
	switch c.Database.Driver {
	case DriverPostgres, DriverMemory:
	default:
		return fmt.Errorf("unknown database.driver %q", c.Database.Driver)
	}
	if c.Stream.Buffer <= 0 {
		return fmt.Errorf("stream.buffer must be positive, got %d", c.Stream.Buffer)
	}
	return nil
}

// DSN returns the Postgres connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s", d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode)
}
