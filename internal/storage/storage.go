// Package storage persists trading state with BoltDB: the open-position
// recovery set the live executor reloads after a restart, and the journal of
// closed trades.
//
// Open positions are keyed by position id; closed trades by
// "symbol_unixnano" for efficient time-range queries.
package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"stratbot/internal/engine"
)

const (
	openPositionsBucket = "open_positions"
	tradesBucket        = "trades"
)

// Store provides persistent storage for positions and trades.
type Store struct {
	db *bbolt.DB
}

// New opens (or creates) the database under dataPath and ensures the
// buckets exist.
func New(dataPath string) (*Store, error) {
	dbPath := filepath.Join(dataPath, "stratbot.db")

	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(openPositionsBucket)); err != nil {
			return fmt.Errorf("create open positions bucket: %w", err)
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(tradesBucket)); err != nil {
			return fmt.Errorf("create trades bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// SaveOpenPosition upserts an open position into the recovery set. Called
// on every position mutation so a restart never loses tracked state.
func (s *Store) SaveOpenPosition(p *engine.Position) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(openPositionsBucket))

		data, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("marshal position: %w", err)
		}
		return b.Put([]byte(p.ID), data)
	})
}

// DeleteOpenPosition removes a position from the recovery set once it is
// confirmed closed.
func (s *Store) DeleteOpenPosition(id string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(openPositionsBucket)).Delete([]byte(id))
	})
}

// LoadOpenPositions returns every persisted open position, used on startup
// before the first live cycle.
func (s *Store) LoadOpenPositions() ([]*engine.Position, error) {
	var positions []*engine.Position

	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(openPositionsBucket)).ForEach(func(k, v []byte) error {
			var p engine.Position
			if err := json.Unmarshal(v, &p); err != nil {
				return fmt.Errorf("unmarshal position %s: %w", k, err)
			}
			positions = append(positions, &p)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return positions, nil
}

// AppendTrade journals a closed trade.
func (s *Store) AppendTrade(t engine.Trade) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(tradesBucket))

		data, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("marshal trade: %w", err)
		}
		key := fmt.Sprintf("%s_%d", t.Symbol, t.ExitTime.UnixNano())
		return b.Put([]byte(key), data)
	})
}

// GetTrades retrieves closed trades for a symbol within a time range,
// inclusive on both ends.
func (s *Store) GetTrades(symbol string, start, end time.Time) ([]engine.Trade, error) {
	var trades []engine.Trade

	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(tradesBucket)).Cursor()

		prefix := []byte(symbol + "_")
		startKey := []byte(fmt.Sprintf("%s_%d", symbol, start.UnixNano()))
		endKey := []byte(fmt.Sprintf("%s_%d", symbol, end.UnixNano()))

		for k, v := c.Seek(startKey); k != nil && bytes.Compare(k, endKey) <= 0; k, v = c.Next() {
			if !bytes.HasPrefix(k, prefix) {
				continue
			}

			var t engine.Trade
			if err := json.Unmarshal(v, &t); err != nil {
				continue // skip malformed records
			}
			trades = append(trades, t)
		}
		return nil
	})

	return trades, err
}
