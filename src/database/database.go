package database

import (
	"database/sql"
	stdlog "log"

	"github.com/username/tradeclarity/backend/src/logger"
	_ "modernc.org/sqlite"
)

var DB *sql.DB

// InitDB opens the database and ensures the schema exists. Timestamps are
// stored as UTC epoch milliseconds (INTEGER) throughout; decimal quantities
// are stored as TEXT to avoid float drift.
func InitDB(databasePath string) {
	db, err := sql.Open("sqlite", databasePath)
	if err != nil {
		stdlog.Fatalf("failed to open database at %s: %v", databasePath, err)
	}

	DB = db

	if _, err := DB.Exec(`PRAGMA foreign_keys = ON;`); err != nil {
		stdlog.Fatalf("failed to enable foreign keys: %v", err)
	}

	if logger.L != nil {
		logger.L.Info("Ensuring database schema", "databasePath", databasePath)
	}

	createTableStatement := `
	CREATE TABLE IF NOT EXISTS exchange_connections (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		exchange TEXT NOT NULL,
		label TEXT,
		sealed_credentials BLOB,
		snaptrade_auth_id TEXT,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS snaptrade_users (
		user_id TEXT PRIMARY KEY,
		st_user_id TEXT NOT NULL,
		st_user_secret TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS trades (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		connection_id TEXT,
		exchange TEXT NOT NULL,
		trade_id TEXT NOT NULL,
		order_id TEXT,
		symbol TEXT NOT NULL,
		account_type TEXT NOT NULL,
		is_buyer INTEGER NOT NULL,
		is_maker INTEGER NOT NULL DEFAULT 0,
		quantity TEXT NOT NULL,
		price TEXT NOT NULL,
		quote_quantity TEXT NOT NULL,
		commission TEXT NOT NULL,
		commission_asset TEXT,
		trade_time INTEGER NOT NULL,
		raw_data TEXT,
		updated_at INTEGER NOT NULL,
		UNIQUE(user_id, exchange, trade_id),
		FOREIGN KEY(connection_id) REFERENCES exchange_connections(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS futures_income (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		connection_id TEXT,
		exchange TEXT NOT NULL,
		tran_id TEXT NOT NULL,
		symbol TEXT NOT NULL,
		income TEXT NOT NULL,
		asset TEXT,
		income_type TEXT,
		time INTEGER NOT NULL,
		raw_data TEXT,
		updated_at INTEGER NOT NULL,
		UNIQUE(user_id, exchange, tran_id),
		FOREIGN KEY(connection_id) REFERENCES exchange_connections(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS holding_snapshots (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		connection_id TEXT NOT NULL,
		exchange TEXT NOT NULL,
		holdings TEXT NOT NULL,
		total_portfolio_value REAL NOT NULL,
		total_spot_value REAL NOT NULL,
		total_futures_value REAL NOT NULL,
		primary_currency TEXT NOT NULL DEFAULT 'USD',
		snapshot_time INTEGER NOT NULL,
		FOREIGN KEY(connection_id) REFERENCES exchange_connections(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS analytics_cache (
		user_id TEXT PRIMARY KEY,
		analytics_data TEXT NOT NULL,
		ai_context TEXT,
		total_trades INTEGER NOT NULL,
		trades_hash TEXT NOT NULL,
		expires_at INTEGER NOT NULL,
		computed_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS exchange_rates (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		base TEXT NOT NULL,
		rates TEXT NOT NULL,
		fetched_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_trades_user ON trades(user_id);
	CREATE INDEX IF NOT EXISTS idx_trades_connection ON trades(connection_id);
	CREATE INDEX IF NOT EXISTS idx_futures_income_user ON futures_income(user_id);
	CREATE INDEX IF NOT EXISTS idx_snapshots_user ON holding_snapshots(user_id);
	CREATE INDEX IF NOT EXISTS idx_snapshots_connection_time ON holding_snapshots(connection_id, snapshot_time);
	CREATE INDEX IF NOT EXISTS idx_connections_user ON exchange_connections(user_id);
	`

	if _, err := DB.Exec(createTableStatement); err != nil {
		if logger.L != nil {
			logger.L.Error("failed to create tables", "error", err)
		}
		stdlog.Fatalf("failed to create tables: %v", err)
	}

	if logger.L != nil {
		logger.L.Info("Database tables ensured/created.")
	}
}
