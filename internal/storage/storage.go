// Package storage is a small bbolt-backed key/value store so components
// can persist small bits of state across restarts, such as the J1939
// listener's discovered-PGN set.
package storage

import (
	"time"

	bolt "go.etcd.io/bbolt"
)

// Store is a thin wrapper around a *bolt.DB opened with the gateway's
// default options.
type Store struct {
	db *bolt.DB
}

// Open opens (or creates) a bbolt database at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put writes key=value into bucket, creating the bucket if necessary.
func (s *Store) Put(bucket, key, value string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(bucket))
		if err != nil {
			return err
		}
		return b.Put([]byte(key), []byte(value))
	})
}

// Get reads key from bucket. ok is false if the bucket or key is absent.
func (s *Store) Get(bucket, key string) (value string, ok bool, err error) {
	err = s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return nil
		}
		v := b.Get([]byte(key))
		if v != nil {
			value = string(v)
			ok = true
		}
		return nil
	})
	return value, ok, err
}

// MarkSeen records key in bucket if it is not already present. It reports
// whether the key was new.
func (s *Store) MarkSeen(bucket, key string) (isNew bool, err error) {
	err = s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(bucket))
		if err != nil {
			return err
		}
		if b.Get([]byte(key)) != nil {
			isNew = false
			return nil
		}
		isNew = true
		return b.Put([]byte(key), []byte{1})
	})
	return isNew, err
}
