package sqlstore

import (
	"database/sql"
	"fmt"

	"cryptomonitor/config"

	_ "github.com/lib/pq"
)

// CreateDatabase connects to the postgres server and creates the store
// database if it doesn't exist. Only used for the postgres driver; the
// sqlite driver creates its file on open.
func CreateDatabase(cfg config.StorageConfig, env string) error {
	db, err := sql.Open("postgres", cfg.BootstrapDSN(env))
	if err != nil {
		return fmt.Errorf("connect failed: %w", err)
	}
	defer db.Close()

	// Check if database exists
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM pg_database WHERE datname = $1);`
	if err := db.QueryRow(query, cfg.Name).Scan(&exists); err != nil {
		return fmt.Errorf("check db exists failed: %w", err)
	}

	if exists {
		return nil // DB already exists
	}

	_, err = db.Exec(fmt.Sprintf("CREATE DATABASE %s", cfg.Name))
	if err != nil {
		return fmt.Errorf("create db failed: %w", err)
	}

	return nil
}
