package database

import "database/sql"

// LedgerSchema is the full relational layout of the order router's ledger.
// Cash amounts are stored as decimal strings (2 dp), prices as decimal
// strings (4 dp), quantities as integers. Timestamps are ISO-8601 UTC text.
const LedgerSchema = `
CREATE TABLE IF NOT EXISTS users (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    email TEXT UNIQUE NOT NULL,
    name TEXT NOT NULL DEFAULT '',
    role TEXT NOT NULL DEFAULT 'client',
    broker TEXT NOT NULL DEFAULT '',
    cash_available TEXT NOT NULL DEFAULT '0.00',
    cash_blocked TEXT NOT NULL DEFAULT '0.00',
    created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS trader_clients (
    trader_id INTEGER NOT NULL REFERENCES users(id),
    client_id INTEGER NOT NULL REFERENCES users(id),
    PRIMARY KEY (trader_id, client_id)
);

CREATE TABLE IF NOT EXISTS holdings (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id INTEGER NOT NULL REFERENCES users(id),
    symbol TEXT NOT NULL,
    quantity INTEGER NOT NULL DEFAULT 0,
    reserved_qty INTEGER NOT NULL DEFAULT 0,
    avg_price TEXT NOT NULL DEFAULT '0.0000',
    updated_at TEXT NOT NULL,
    UNIQUE (user_id, symbol)
);

CREATE TABLE IF NOT EXISTS orders (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id INTEGER NOT NULL REFERENCES users(id),
    placed_by INTEGER NOT NULL REFERENCES users(id),
    symbol TEXT NOT NULL,
    side TEXT NOT NULL,
    product TEXT NOT NULL DEFAULT 'equity',
    order_type TEXT NOT NULL DEFAULT 'limit',
    quantity INTEGER NOT NULL,
    limit_price TEXT,
    filled_qty INTEGER NOT NULL DEFAULT 0,
    avg_fill_price TEXT NOT NULL DEFAULT '0.0000',
    status TEXT NOT NULL DEFAULT 'NEW',
    broker_order_id TEXT,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_orders_user ON orders(user_id);
CREATE INDEX IF NOT EXISTS idx_orders_broker_order_id ON orders(broker_order_id);

CREATE TABLE IF NOT EXISTS order_fills (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    order_id INTEGER NOT NULL REFERENCES orders(id),
    broker_fill_id TEXT,
    quantity INTEGER NOT NULL,
    price TEXT NOT NULL,
    created_at TEXT NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_order_fills_idempotency
    ON order_fills(order_id, broker_fill_id) WHERE broker_fill_id IS NOT NULL;

CREATE TABLE IF NOT EXISTS audit_log (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    actor_id INTEGER,
    target_id INTEGER,
    action TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    details TEXT,
    prev_hash TEXT,
    hash TEXT NOT NULL,
    created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_actor_action ON audit_log(actor_id, action, created_at);

CREATE TABLE IF NOT EXISTS portfolio_snapshots (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id INTEGER NOT NULL REFERENCES users(id),
    snapshot_date TEXT NOT NULL,
    cash_available TEXT NOT NULL,
    cash_blocked TEXT NOT NULL,
    realized_pnl TEXT NOT NULL,
    unrealized_pnl TEXT NOT NULL,
    holdings_json TEXT NOT NULL,
    created_at TEXT NOT NULL,
    UNIQUE (user_id, snapshot_date)
);
`

// InitSchema ensures all ledger tables exist.
func InitSchema(db *sql.DB) error {
	_, err := db.Exec(LedgerSchema)
	return err
}
