// Package journal provides an append-only audit trail of every order placed
// against the venue, independent of the state store's TTL'd keys. It uses
// BoltDB, repurposing the teacher's bucket-per-record-type store from
// market-data capture to order forensics.
package journal

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

const ordersBucket = "orders"

// Record captures one order lifecycle: what was requested, what the venue
// returned on placement, and the last polled status observed.
type Record struct {
	Symbol       string          `json:"symbol"`
	Timestamp    time.Time       `json:"timestamp"`
	Request      json.RawMessage `json:"request"`
	RawResponse  json.RawMessage `json:"raw_response,omitempty"`
	FinalStatus  json.RawMessage `json:"final_status,omitempty"`
}

// Store is an append-only bbolt-backed order journal.
type Store struct {
	db *bbolt.DB
}

// New opens (creating if absent) the journal database under dataPath.
func New(dataPath string) (*Store, error) {
	dbPath := filepath.Join(dataPath, "signalrelay-journal.db")

	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open journal db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(ordersBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create orders bucket: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Append writes a record keyed "{symbol}_{unixnano}", ts defaulting to now
// when the zero value is passed.
func (s *Store) Append(symbol string, ts time.Time, rec Record) error {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	rec.Symbol = symbol
	rec.Timestamp = ts

	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(ordersBucket))
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal journal record: %w", err)
		}
		key := fmt.Sprintf("%s_%d", symbol, ts.UnixNano())
		return b.Put([]byte(key), data)
	})
}

// Range retrieves records for symbol within [start, end], ordered by key
// (hence by time). Malformed records are skipped rather than failing the
// whole query.
func (s *Store) Range(symbol string, start, end time.Time) ([]Record, error) {
	var records []Record

	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(ordersBucket))
		c := b.Cursor()

		prefix := []byte(symbol + "_")
		startKey := []byte(fmt.Sprintf("%s_%d", symbol, start.UnixNano()))
		endKey := []byte(fmt.Sprintf("%s_%d", symbol, end.UnixNano()))

		for k, v := c.Seek(startKey); k != nil && bytes.Compare(k, endKey) <= 0; k, v = c.Next() {
			if !bytes.HasPrefix(k, prefix) {
				continue
			}
			var rec Record
			if err := json.Unmarshal(v, &rec); err != nil {
				continue
			}
			records = append(records, rec)
		}
		return nil
	})

	return records, err
}
