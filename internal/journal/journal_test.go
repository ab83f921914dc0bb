package journal

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"go.etcd.io/bbolt"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error opening journal: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestAppendAndRange_RoundTrips(t *testing.T) {
	s := newTestStore(t)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	req, _ := json.Marshal(map[string]any{"side": "buy", "qty": 1})

	for i := 0; i < 3; i++ {
		err := s.Append("BTCUSD", base.Add(time.Duration(i)*time.Second), Record{Request: req})
		if err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	records, err := s.Range("BTCUSD", base.Add(-time.Hour), base.Add(time.Hour))
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("got %d records, want 3", len(records))
	}
	for _, r := range records {
		if r.Symbol != "BTCUSD" {
			t.Errorf("got symbol %q", r.Symbol)
		}
	}
}

func TestRange_FiltersBySymbolPrefix(t *testing.T) {
	s := newTestStore(t)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	_ = s.Append("BTCUSD", now, Record{})
	_ = s.Append("ETHUSD", now, Record{})

	records, err := s.Range("ETHUSD", now.Add(-time.Minute), now.Add(time.Minute))
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	if len(records) != 1 || records[0].Symbol != "ETHUSD" {
		t.Fatalf("got %+v, want single ETHUSD record", records)
	}
}

func TestRange_SkipsMalformedRecordsSilently(t *testing.T) {
	s := newTestStore(t)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	if err := s.Append("BTCUSD", now, Record{}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := s.db.Update(func(tx *bbolt.Tx) error {
		key := fmt.Sprintf("BTCUSD_%d", now.Add(time.Second).UnixNano())
		return tx.Bucket([]byte(ordersBucket)).Put([]byte(key), []byte("not json"))
	}); err != nil {
		t.Fatalf("seed malformed record: %v", err)
	}

	records, err := s.Range("BTCUSD", now.Add(-time.Minute), now.Add(time.Minute))
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
}

func TestAppend_ZeroTimestampDefaultsToNow(t *testing.T) {
	s := newTestStore(t)
	if err := s.Append("BTCUSD", time.Time{}, Record{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	records, err := s.Range("BTCUSD", time.Now().Add(-time.Minute), time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
}
