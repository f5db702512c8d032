package store

// migration represents a single schema migration.
type migration struct {
	Version int
	Name    string
	SQL     string
}

// migrations is the ordered list of all schema migrations.
var migrations = []migration{
	{
		Version: 1,
		Name:    "create price updates",
		SQL: `
			CREATE TABLE price_updates (
				trip_id       TEXT PRIMARY KEY,
				trip_name     TEXT NOT NULL DEFAULT '',
				flight_price  TEXT NOT NULL DEFAULT '',
				hotel_price   TEXT NOT NULL DEFAULT '',
				total_price   TEXT NOT NULL DEFAULT '',
				updated_at    TEXT NOT NULL,
				received_at   TEXT NOT NULL DEFAULT (datetime('now'))
			);

			CREATE INDEX idx_price_updates_updated ON price_updates (updated_at);
		`,
	},
	{
		Version: 2,
		Name:    "create price history",
		SQL: `
			CREATE TABLE price_history (
				id            INTEGER PRIMARY KEY AUTOINCREMENT,
				trip_id       TEXT NOT NULL,
				flight_price  TEXT NOT NULL DEFAULT '',
				hotel_price   TEXT NOT NULL DEFAULT '',
				total_price   TEXT NOT NULL DEFAULT '',
				updated_at    TEXT NOT NULL
			);

			CREATE INDEX idx_price_history_trip ON price_history (trip_id, id);
		`,
	},
}
