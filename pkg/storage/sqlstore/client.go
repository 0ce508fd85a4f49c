package sqlstore

import (
	"context"
	"fmt"

	"cryptomonitor/config"

	_ "github.com/lib/pq"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type Client struct {
	DB *gorm.DB
}

// NewSQLiteClient opens (or creates) the single-file sqlite store.
func NewSQLiteClient(path string) (*Client, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite store %s: %w", path, err)
	}
	return &Client{DB: db}, nil
}

// NewPostgresClient connects to an existing postgres database.
func NewPostgresClient(dsn string) (*Client, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	return &Client{DB: db}, nil
}

// InitializeAndMigrate opens the store selected by cfg.Driver, creating
// the postgres database first when needed, and runs AutoMigrate. This
// is the only storage failure that aborts startup.
func InitializeAndMigrate(cfg config.StorageConfig, env string) (*Client, error) {
	var (
		client *Client
		err    error
	)

	switch cfg.Driver {
	case "", "sqlite":
		client, err = NewSQLiteClient(cfg.SQLitePath())
	case "postgres":
		if err := CreateDatabase(cfg, env); err != nil {
			return nil, fmt.Errorf("failed to create database: %w", err)
		}
		client, err = NewPostgresClient(cfg.PostgresDSN(env))
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	if err := client.AutoMigrateOrderBookRecord(); err != nil {
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	return client, nil
}

func (c *Client) AutoMigrateOrderBookRecord() error {
	if err := c.DB.AutoMigrate(&OrderBookRecord{}); err != nil {
		return fmt.Errorf("auto-migrate order book table: %w", err)
	}
	return nil
}

// InsertRecords writes a batch of rows as a single all-or-nothing
// transaction. On error nothing is persisted and the caller keeps
// ownership of the records.
func (c *Client) InsertRecords(ctx context.Context, records []OrderBookRecord) error {
	if len(records) == 0 {
		return nil
	}
	return c.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.CreateInBatches(records, 500).Error
	})
}

func (c *Client) IsHealthy(ctx context.Context) bool {
	db, err := c.DB.DB()
	if err != nil {
		return false
	}
	return db.PingContext(ctx) == nil
}

func (c *Client) Close() error {
	db, err := c.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to retrieve raw DB: %w", err)
	}
	return db.Close()
}
