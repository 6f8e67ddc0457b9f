// Package database opens the catalog database through sqlx. PostgreSQL
// (lib/pq) is the production driver; SQLite (go-sqlite3) serves local
// development and tests.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/Adithya-Monish-Kumar-K/product-similarity/pkg/config"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

type Client struct {
	DB  *sqlx.DB
	cfg config.DatabaseConfig
}

func New(cfg config.DatabaseConfig) (*Client, error) {
	db, err := sqlx.Open(cfg.Driver, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("opening %s connection: %w", cfg.Driver, err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging %s: %w", cfg.Driver, err)
	}
	return &Client{DB: db, cfg: cfg}, nil
}

// Driver returns the configured driver name.
func (c *Client) Driver() string {
	return c.cfg.Driver
}

func (c *Client) Ping(ctx context.Context) error {
	return c.DB.PingContext(ctx)
}

func (c *Client) Close() error {
	return c.DB.Close()
}
