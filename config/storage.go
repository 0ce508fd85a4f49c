package config

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// StorageConfig defines the persisted order-book store. The default
// driver is sqlite, which keeps the whole store in a single local file
// named <name>.db. The postgres driver is an opt-in alternative for
// deployments that already run a shared database.
type StorageConfig struct {
	Driver string `mapstructure:"driver"` // "sqlite" or "postgres"

	// Name is the logical store name. It determines the sqlite file
	// (<name>.db), the postgres database name, and the sidecar
	// recovery file (<name>.db.pending).
	Name string `mapstructure:"name"`

	// Batching policy for the durable writer.
	BatchSize    int           `mapstructure:"batch_size"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
	PollInterval time.Duration `mapstructure:"poll_interval"`

	// Postgres-only settings.
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"sslmode"`
	TimeZone string `mapstructure:"timezone"`

	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// SQLitePath returns the sqlite database file path.
func (cfg *StorageConfig) SQLitePath() string {
	return cfg.Name + ".db"
}

// RecoveryPath returns the sidecar recovery file path, derived
// deterministically from the store name.
func (cfg *StorageConfig) RecoveryPath() string {
	if cfg.Driver == "postgres" {
		return cfg.Name + ".pending"
	}
	return cfg.SQLitePath() + ".pending"
}

// PostgresDSN builds the postgres connection string. In prod the
// credentials come from SSM Parameter Store instead of config.yaml.
func (cfg *StorageConfig) PostgresDSN(env string) string {
	host, user, password := cfg.Host, cfg.User, cfg.Password
	if env == "prod" {
		host = getParameterStoreValue("CRYPTOMONITOR_DB_HOST", true)
		user = getParameterStoreValue("CRYPTOMONITOR_DB_USER", true)
		password = getParameterStoreValue("CRYPTOMONITOR_DB_PASSWORD", true)
	}

	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		host, cfg.Port, user, password, cfg.Name, cfg.SSLMode,
	)

	if cfg.TimeZone != "" {
		dsn += fmt.Sprintf(" TimeZone=%s", cfg.TimeZone)
	}

	return dsn
}

// BootstrapDSN connects to the default 'postgres' database so the
// target database can be created if it does not exist yet.
func (cfg *StorageConfig) BootstrapDSN(env string) string {
	host, user, password := cfg.Host, cfg.User, cfg.Password
	if env == "prod" {
		host = getParameterStoreValue("CRYPTOMONITOR_DB_HOST", true)
		user = getParameterStoreValue("CRYPTOMONITOR_DB_USER", true)
		password = getParameterStoreValue("CRYPTOMONITOR_DB_PASSWORD", true)
	}

	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=postgres sslmode=%s",
		host, cfg.Port, user, password, cfg.SSLMode,
	)
}

func getParameterStoreValue(parameterName string, decrypt bool) string {
	baseCtx := context.Background()
	ctxWithTimeout, cancel := context.WithTimeout(baseCtx, 5*time.Second)
	defer cancel()

	awsCfg, err := config.LoadDefaultConfig(ctxWithTimeout)
	if err != nil {
		return ""
	}

	client := ssm.NewFromConfig(awsCfg)

	input := &ssm.GetParameterInput{
		Name:           &parameterName,
		WithDecryption: &decrypt,
	}

	result, err := client.GetParameter(ctxWithTimeout, input)
	if err != nil {
		return ""
	}

	if result.Parameter.Value == nil {
		return ""
	}

	return *result.Parameter.Value
}
