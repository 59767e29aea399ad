package localecu

import (
	"encoding/binary"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

const claimBucket = "local_ecu_claims"

// boltStore persists claim refcounts in a bbolt bucket keyed by
// "ifindex/name/addr", the same OpenDB-then-bucket idiom
// pkg/storage/dtc.go uses for DTC dedup, repurposed here so a daemon
// restart can see claims a previous instance never cleanly released.
type boltStore struct {
	db *bolt.DB
}

func newBoltStore(path string) (*boltStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("localecu: open %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(claimBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("localecu: create bucket: %w", err)
	}
	return &boltStore{db: db}, nil
}

func (s *boltStore) incr(key claimKey) (int, error) {
	var count int
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(claimBucket))
		count = readCount(b.Get(keyBytes(key))) + 1
		return b.Put(keyBytes(key), countBytes(count))
	})
	return count, err
}

func (s *boltStore) decr(key claimKey) (int, error) {
	var count int
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(claimBucket))
		count = readCount(b.Get(keyBytes(key)))
		if count <= 0 {
			return nil
		}
		count--
		if count == 0 {
			return b.Delete(keyBytes(key))
		}
		return b.Put(keyBytes(key), countBytes(count))
	})
	return count, err
}

// Close releases the underlying database handle.
func (s *boltStore) Close() error {
	return s.db.Close()
}

func keyBytes(k claimKey) []byte {
	return []byte(k.String())
}

func countBytes(n int) []byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, uint32(n))
	return buf
}

func readCount(b []byte) int {
	if len(b) != 4 {
		return 0
	}
	return int(binary.BigEndian.Uint32(b))
}
