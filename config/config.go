package config

import (
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Binance BinanceConfig `mapstructure:"binance"`
	Log     LogConfig     `mapstructure:"log"`
	Storage StorageConfig `mapstructure:"storage"`
	Export  ExportConfig  `mapstructure:"export"`
}

type BinanceConfig struct {
	REST RESTConfig `mapstructure:"rest"`
	WS   WSConfig   `mapstructure:"ws"`

	// Symbols is the fixed instrument set, lower-cased Binance pairs
	// (e.g. "btcusdt"). Feed payloads for anything else are dropped.
	Symbols []string `mapstructure:"symbols"`

	// MaxTrades bounds the per-symbol in-memory trade ring buffer.
	MaxTrades int `mapstructure:"max_trades"`

	// ValidateSymbols checks the configured symbols against the
	// exchangeInfo endpoint before connecting.
	ValidateSymbols bool `mapstructure:"validate_symbols"`
}

type RESTConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type WSConfig struct {
	URL string `mapstructure:"url"`

	// Reconnect policy. Delay grows as base_delay * 2^attempts, capped
	// at max_delay. After max_reconnect_attempts consecutive failed
	// cycles the connector parks until an external reset.
	BaseDelay            time.Duration `mapstructure:"base_delay"`
	MaxDelay             time.Duration `mapstructure:"max_delay"`
	MaxReconnectAttempts int           `mapstructure:"max_reconnect_attempts"`
	ConnectDebounce      time.Duration `mapstructure:"connect_debounce"`
	HandshakeTimeout     time.Duration `mapstructure:"handshake_timeout"`
}

// LogConfig defines the logger configuration options.
type LogConfig struct {
	Level       string `mapstructure:"level"`       // log level: "debug", "info", "warn", "error"
	Format      string `mapstructure:"format"`      // log format: "json" or "console"
	OutputFile  string `mapstructure:"output_file"` // file path to store logs (optional)
	Environment string `mapstructure:"environment"` // environment: "dev" or "prod"
}

type ExportConfig struct {
	// Dir is where trade_history_<SYMBOL>.csv files are appended.
	Dir string `mapstructure:"dir"`
}

// Load loads application configuration using Viper.
// It reads from config.yaml and overrides with environment variables.
func Load() *Config {
	v := viper.New()

	v.SetConfigName("config") // config.yaml
	v.SetConfigType("yaml")

	ex, _ := os.Executable()
	if strings.Contains(ex, "go-build") {
		pwd, _ := os.Getwd()
		v.AddConfigPath(filepath.Join(pwd, "../../config"))
	} else {
		v.AddConfigPath(filepath.Join(filepath.Dir(ex), "../config"))
	}

	setDefaults(v)

	// Support environment variables with dot notation (e.g., BINANCE_WS_URL)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		log.Fatalf("failed to read config: %v", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		log.Fatalf("failed to unmarshal config: %v", err)
	}

	return &cfg
}

// setDefaults installs the numeric policy defaults so a minimal
// config.yaml still yields a runnable pipeline.
func setDefaults(v *viper.Viper) {
	v.SetDefault("binance.rest.base_url", "https://api.binance.us")
	v.SetDefault("binance.rest.timeout", "10s")
	v.SetDefault("binance.ws.url", "wss://stream.binance.us:9443")
	v.SetDefault("binance.ws.base_delay", "5s")
	v.SetDefault("binance.ws.max_delay", "300s")
	v.SetDefault("binance.ws.max_reconnect_attempts", 10)
	v.SetDefault("binance.ws.connect_debounce", "1s")
	v.SetDefault("binance.ws.handshake_timeout", "10s")
	v.SetDefault("binance.symbols", []string{"btcusdt", "ethusdt", "xrpusdt", "ltcusdt", "dogeusdt"})
	v.SetDefault("binance.max_trades", 500)
	v.SetDefault("binance.validate_symbols", false)
	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("storage.name", "order_book_data")
	v.SetDefault("storage.batch_size", 100)
	v.SetDefault("storage.batch_timeout", "5s")
	v.SetDefault("storage.poll_interval", "100ms")
	v.SetDefault("export.dir", ".")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.environment", "dev")
}
