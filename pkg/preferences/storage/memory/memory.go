// Package memory is an in-process preferences.Storage.
package memory

import (
	"bytes"
	"context"
	"sync"

	"github.com/xaionaro-go/multitrack/pkg/preferences"
)

type Storage struct {
	locker sync.Mutex
	values map[string][]byte
}

var _ preferences.Storage = (*Storage)(nil)

func New() *Storage {
	return &Storage{
		values: map[string][]byte{},
	}
}

func (s *Storage) Load(_ context.Context, key string) ([]byte, error) {
	s.locker.Lock()
	defer s.locker.Unlock()
	value, ok := s.values[key]
	if !ok {
		return nil, preferences.ErrNotFound
	}
	return bytes.Clone(value), nil
}

func (s *Storage) Save(_ context.Context, key string, value []byte) error {
	s.locker.Lock()
	defer s.locker.Unlock()
	s.values[key] = bytes.Clone(value)
	return nil
}
