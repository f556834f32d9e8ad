package db

import (
	"fmt"
)

const schema = `
PRAGMA journal_mode=WAL;

CREATE TABLE IF NOT EXISTS sender_info (
    router_id TEXT PRIMARY KEY,
    client_order_id TEXT NOT NULL,
    sender_comp_id TEXT NOT NULL,
    strategy TEXT NOT NULL DEFAULT '',
    team TEXT NOT NULL DEFAULT '',
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS orders (
    id TEXT PRIMARY KEY,
    exchange TEXT NOT NULL,
    symbol TEXT NOT NULL,
    version INTEGER NOT NULL,
    price TEXT NOT NULL,
    qty TEXT NOT NULL,
    exec TEXT NOT NULL,
    prev_versions TEXT NOT NULL DEFAULT '[]',
    pending_cancel TEXT NOT NULL DEFAULT '',
    pending_amend TEXT NOT NULL DEFAULT '',
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS positions (
    id TEXT PRIMARY KEY,
    price TEXT NOT NULL,
    qty TEXT NOT NULL,
    amount TEXT NOT NULL,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS trades (
    exec_id TEXT PRIMARY KEY,
    order_id TEXT NOT NULL,
    price TEXT NOT NULL,
    qty TEXT NOT NULL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_trades_order ON trades(order_id);

CREATE TABLE IF NOT EXISTS counters (
    name TEXT PRIMARY KEY,
    value INTEGER NOT NULL
);
`

// ApplyMigrations creates tables if they do not exist.
func ApplyMigrations(database *Database) error {
	if database == nil || database.DB == nil {
		return fmt.Errorf("database not initialized")
	}
	if _, err := database.DB.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
