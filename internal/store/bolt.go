package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/soyeahso/tripwatch/internal/domain"
	bolt "go.etcd.io/bbolt"
)

var pricesBucket = []byte("prices")

// BoltPriceBook is a PriceBook kept in a bbolt file, one JSON record per
// trip. It keeps no history.
type BoltPriceBook struct {
	db *bolt.DB
}

// OpenBoltPriceBook opens or creates the database at path.
func OpenBoltPriceBook(path string) (*BoltPriceBook, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(pricesBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating bucket: %w", err)
	}
	return &BoltPriceBook{db: db}, nil
}

func (b *BoltPriceBook) Put(_ context.Context, u domain.PriceUpdate) error {
	if u.TripID == "" {
		return errors.New("price update has no trip id")
	}
	v, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("failed to marshal update: %w", err)
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(pricesBucket).Put([]byte(u.TripID), v)
	})
}

func (b *BoltPriceBook) Get(_ context.Context, tripID string) (domain.PriceUpdate, bool, error) {
	var (
		u     domain.PriceUpdate
		found bool
	)
	err := b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(pricesBucket).Get([]byte(tripID))
		if v == nil {
			return nil
		}
		found = true
		return json.Unmarshal(v, &u)
	})
	if err != nil {
		return domain.PriceUpdate{}, false, fmt.Errorf("failed to read %s: %w", tripID, err)
	}
	return u, found, nil
}

func (b *BoltPriceBook) List(context.Context) ([]domain.PriceUpdate, error) {
	var out []domain.PriceUpdate
	err := b.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(pricesBucket).ForEach(func(_, v []byte) error {
			var u domain.PriceUpdate
			if err := json.Unmarshal(v, &u); err != nil {
				return fmt.Errorf("failed to unmarshal update: %w", err)
			}
			out = append(out, u)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sortNewestFirst(out)
	return out, nil
}

func (b *BoltPriceBook) Close() error { return b.db.Close() }
