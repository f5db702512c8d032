package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/soyeahso/tripwatch/internal/domain"
	"github.com/soyeahso/tripwatch/internal/logging"
)

const timeLayout = time.RFC3339Nano

// SQLitePriceBook is a PriceBook persisted in SQLite. Every Put is also
// appended to the trip's price history.
type SQLitePriceBook struct {
	db *DB
}

// NewSQLitePriceBook creates a price book using the given database.
func NewSQLitePriceBook(db *DB) *SQLitePriceBook {
	return &SQLitePriceBook{db: db}
}

// Put upserts the latest update for u.TripID.
func (s *SQLitePriceBook) Put(ctx context.Context, u domain.PriceUpdate) error {
	if u.TripID == "" {
		return errors.New("price update has no trip id")
	}
	if u.UpdatedAt.IsZero() {
		u.UpdatedAt = time.Now()
	}
	updated := u.UpdatedAt.UTC().Format(timeLayout)

	tx, err := s.db.sql.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO price_updates (trip_id, trip_name, flight_price, hotel_price, total_price, updated_at, received_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(trip_id) DO UPDATE SET
		   trip_name = excluded.trip_name,
		   flight_price = excluded.flight_price,
		   hotel_price = excluded.hotel_price,
		   total_price = excluded.total_price,
		   updated_at = excluded.updated_at,
		   received_at = excluded.received_at`,
		u.TripID, u.TripName, u.FlightPrice, u.HotelPrice, u.TotalPrice,
		updated, time.Now().UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("upserting price for %s: %w", u.TripID, err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO price_history (trip_id, flight_price, hotel_price, total_price, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		u.TripID, u.FlightPrice, u.HotelPrice, u.TotalPrice, updated,
	)
	if err != nil {
		return fmt.Errorf("recording price history for %s: %w", u.TripID, err)
	}

	return tx.Commit()
}

// Get returns the latest update for tripID.
func (s *SQLitePriceBook) Get(ctx context.Context, tripID string) (domain.PriceUpdate, bool, error) {
	row := s.db.sql.QueryRowContext(ctx,
		`SELECT trip_id, trip_name, flight_price, hotel_price, total_price, updated_at
		 FROM price_updates WHERE trip_id = ?`, tripID)

	u, err := scanUpdate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.PriceUpdate{}, false, nil
	}
	if err != nil {
		return domain.PriceUpdate{}, false, err
	}
	return u, true, nil
}

// List returns the latest update of every trip, most recently updated first.
func (s *SQLitePriceBook) List(ctx context.Context) ([]domain.PriceUpdate, error) {
	rows, err := s.db.sql.QueryContext(ctx,
		`SELECT trip_id, trip_name, flight_price, hotel_price, total_price, updated_at
		 FROM price_updates ORDER BY updated_at DESC, trip_id`)
	if err != nil {
		return nil, fmt.Errorf("listing prices: %w", err)
	}
	defer rows.Close()

	var out []domain.PriceUpdate
	for rows.Next() {
		u, err := scanUpdate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// History returns up to limit past prices of tripID, newest first. A limit
// of 0 defaults to 20.
func (s *SQLitePriceBook) History(ctx context.Context, tripID string, limit int) ([]domain.PriceUpdate, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.sql.QueryContext(ctx,
		`SELECT h.trip_id, COALESCE(p.trip_name, ''), h.flight_price, h.hotel_price, h.total_price, h.updated_at
		 FROM price_history h LEFT JOIN price_updates p ON p.trip_id = h.trip_id
		 WHERE h.trip_id = ? ORDER BY h.id DESC LIMIT ?`, tripID, limit)
	if err != nil {
		return nil, fmt.Errorf("loading price history: %w", err)
	}
	defer rows.Close()

	var out []domain.PriceUpdate
	for rows.Next() {
		u, err := scanUpdate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// Close closes the underlying database.
func (s *SQLitePriceBook) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUpdate(row scanner) (domain.PriceUpdate, error) {
	var u domain.PriceUpdate
	var updated string
	if err := row.Scan(&u.TripID, &u.TripName, &u.FlightPrice, &u.HotelPrice, &u.TotalPrice, &updated); err != nil {
		return u, err
	}
	t, err := time.Parse(timeLayout, updated)
	if err != nil {
		return u, fmt.Errorf("parsing updated_at %q: %w", updated, err)
	}
	u.UpdatedAt = t
	return u, nil
}

// OpenPriceBook opens the price book selected by driver: "memory", "bolt"
// or "sqlite" (the default).
func OpenPriceBook(ctx context.Context, driver, path string, log *logging.Logger) (PriceBook, error) {
	switch driver {
	case "memory":
		return NewMemoryPriceBook(), nil
	case "bolt":
		return OpenBoltPriceBook(path)
	case "", "sqlite":
		db, err := Open(ctx, path, log)
		if err != nil {
			return nil, err
		}
		return NewSQLitePriceBook(db), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
}
