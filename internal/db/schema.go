package db

// migrationDef is one versioned schema migration applied by the Migrator.
type migrationDef struct {
	Version     int
	Description string
	SQL         string
}

// migrations are applied in order at startup. Append only; never edit an
// applied migration, since its checksum is recorded.
var migrations = []migrationDef{
	{
		Version:     1,
		Description: "initial_schema",
		SQL: `
CREATE TABLE IF NOT EXISTS config (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS categories (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	display_order INTEGER NOT NULL DEFAULT 0,
	active        INTEGER NOT NULL DEFAULT 1,
	created_at    INTEGER NOT NULL,
	updated_at    INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS menu_items (
	id          TEXT PRIMARY KEY,
	category_id TEXT NOT NULL REFERENCES categories(id),
	name        TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	price       REAL NOT NULL CHECK(price >= 0),
	allergens   TEXT NOT NULL DEFAULT '',
	available   INTEGER NOT NULL DEFAULT 1,
	created_at  INTEGER NOT NULL,
	updated_at  INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS orders (
	id             TEXT PRIMARY KEY,
	order_number   TEXT NOT NULL UNIQUE,
	order_type     TEXT NOT NULL CHECK(order_type IN ('DINE_IN','COLLECTION','DELIVERY','WAITING')),
	table_number   TEXT NOT NULL DEFAULT '',
	customer_name  TEXT NOT NULL DEFAULT '',
	customer_phone TEXT NOT NULL DEFAULT '',
	subtotal       REAL NOT NULL CHECK(subtotal >= 0),
	tax            REAL NOT NULL CHECK(tax >= 0),
	discount       REAL NOT NULL CHECK(discount >= 0),
	total          REAL NOT NULL CHECK(total >= 0),
	payment_status TEXT NOT NULL DEFAULT 'PENDING' CHECK(payment_status IN ('PENDING','PAID','FAILED')),
	order_status   TEXT NOT NULL DEFAULT 'NEW' CHECK(order_status IN ('NEW','PREPARING','READY','COMPLETED','CANCELLED')),
	synced         INTEGER NOT NULL DEFAULT 0,
	sync_error     TEXT NOT NULL DEFAULT '',
	created_at     INTEGER NOT NULL,
	updated_at     INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS order_items (
	id           TEXT PRIMARY KEY,
	order_id     TEXT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
	menu_item_id TEXT NOT NULL DEFAULT '',
	name         TEXT NOT NULL,
	quantity     INTEGER NOT NULL CHECK(quantity > 0),
	unit_price   REAL NOT NULL CHECK(unit_price >= 0),
	total_price  REAL NOT NULL CHECK(total_price >= 0),
	instructions TEXT NOT NULL DEFAULT '',
	created_at   INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS sync_queue (
	id              TEXT PRIMARY KEY,
	operation_type  TEXT NOT NULL CHECK(operation_type IN ('CREATE','UPDATE','DELETE')),
	table_name      TEXT NOT NULL,
	record_id       TEXT NOT NULL,
	data            TEXT NOT NULL,
	status          TEXT NOT NULL DEFAULT 'PENDING' CHECK(status IN ('PENDING','IN_FLIGHT','FAILED')),
	attempts        INTEGER NOT NULL DEFAULT 0,
	last_attempt    INTEGER NOT NULL DEFAULT 0,
	next_attempt_at INTEGER NOT NULL DEFAULT 0,
	error_message   TEXT NOT NULL DEFAULT '',
	created_at      INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS print_jobs (
	id            TEXT PRIMARY KEY,
	order_id      TEXT NOT NULL,
	print_type    TEXT NOT NULL CHECK(print_type IN ('RECEIPT','KITCHEN','BAR')),
	printer_name  TEXT NOT NULL,
	content       TEXT NOT NULL,
	status        TEXT NOT NULL DEFAULT 'PENDING' CHECK(status IN ('PENDING','PRINTING','PRINTED','FAILED')),
	attempts      INTEGER NOT NULL DEFAULT 0,
	error_message TEXT NOT NULL DEFAULT '',
	printed_at    INTEGER NOT NULL DEFAULT 0,
	created_at    INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(order_status);
CREATE INDEX IF NOT EXISTS idx_orders_type ON orders(order_type);
CREATE INDEX IF NOT EXISTS idx_orders_created ON orders(created_at);
CREATE INDEX IF NOT EXISTS idx_sync_queue_table ON sync_queue(table_name);
CREATE INDEX IF NOT EXISTS idx_sync_queue_poll ON sync_queue(status, next_attempt_at);
CREATE INDEX IF NOT EXISTS idx_print_jobs_status ON print_jobs(status);
`,
	},
	{
		Version:     2,
		Description: "print_jobs_retry_gate",
		SQL: `
ALTER TABLE print_jobs ADD COLUMN next_attempt_at INTEGER NOT NULL DEFAULT 0;
CREATE INDEX IF NOT EXISTS idx_print_jobs_poll ON print_jobs(status, next_attempt_at);
`,
	},
}
