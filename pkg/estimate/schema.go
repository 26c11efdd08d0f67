package estimate

import (
	"context"
	"database/sql"
	"fmt"
)

// Schema creates and migrates the estimate tables. It satisfies
// vault.Schema and is invoked on every open, after the working copy
// connects.
type Schema struct{}

// Init creates the tables if they do not exist and applies column
// migrations for databases written by older versions.
func (Schema) Init(ctx context.Context, db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS estimates (
		id TEXT PRIMARY KEY,
		voucher_no TEXT UNIQUE NOT NULL,
		date INTEGER NOT NULL,
		silver_rate REAL NOT NULL DEFAULT 0,
		note TEXT DEFAULT '',
		total_gross REAL NOT NULL DEFAULT 0,
		total_net REAL NOT NULL DEFAULT 0,
		total_fine REAL NOT NULL DEFAULT 0,
		total_amount REAL NOT NULL DEFAULT 0,
		created_at INTEGER DEFAULT (strftime('%s', 'now'))
	);
	CREATE INDEX IF NOT EXISTS idx_estimates_voucher ON estimates(voucher_no);
	CREATE INDEX IF NOT EXISTS idx_estimates_date ON estimates(date);

	CREATE TABLE IF NOT EXISTS estimate_items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		estimate_id TEXT NOT NULL REFERENCES estimates(id) ON DELETE CASCADE,
		item_name TEXT NOT NULL,
		gross_wt REAL NOT NULL DEFAULT 0,
		poly_wt REAL NOT NULL DEFAULT 0,
		net_wt REAL NOT NULL DEFAULT 0,
		purity REAL NOT NULL DEFAULT 0,
		fine_wt REAL NOT NULL DEFAULT 0,
		labor_rate REAL NOT NULL DEFAULT 0,
		amount REAL NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_estimate_items_estimate ON estimate_items(estimate_id);
	`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	// Column migrations for databases created before these fields existed.
	migrations := []string{
		"ALTER TABLE estimates ADD COLUMN note TEXT DEFAULT ''",
		"ALTER TABLE estimate_items ADD COLUMN poly_wt REAL NOT NULL DEFAULT 0",
		"ALTER TABLE estimate_items ADD COLUMN labor_rate REAL NOT NULL DEFAULT 0",
	}
	for _, m := range migrations {
		// Ignore errors for columns that already exist.
		db.ExecContext(ctx, m)
	}
	return nil
}
