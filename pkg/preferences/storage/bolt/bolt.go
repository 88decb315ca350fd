// Package bolt is a preferences.Storage in a bbolt database file.
package bolt

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/xaionaro-go/multitrack/pkg/preferences"
	bolt "go.etcd.io/bbolt"
)

var bucketName = []byte("preferences")

type Storage struct {
	db *bolt.DB
}

var _ preferences.Storage = (*Storage)(nil)

// Open opens (or creates) the database at path.
func Open(path string) (*Storage, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("unable to open '%s': %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("unable to create the bucket: %w", err)
	}
	return &Storage{db: db}, nil
}

func (s *Storage) Load(_ context.Context, key string) ([]byte, error) {
	var result []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		value := tx.Bucket(bucketName).Get([]byte(key))
		if value == nil {
			return preferences.ErrNotFound
		}
		result = bytes.Clone(value)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Storage) Save(_ context.Context, key string, value []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Put([]byte(key), value)
	})
}

func (s *Storage) Close() error {
	return s.db.Close()
}
