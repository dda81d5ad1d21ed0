package store

import (
	"sync"
)

// MemoryStore is an in-process Store. Values are copied on the way in and out.
type MemoryStore struct {
	mu       sync.RWMutex
	data     map[string][]byte
	writeErr error
	keyErrs  map[string]error
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

// FailWrites makes every subsequent Set and Delete return err. Pass nil to heal.
func (m *MemoryStore) FailWrites(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeErr = err
}

// FailKey makes writes touching key return err. Pass nil to heal.
func (m *MemoryStore) FailKey(key string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keyErrs == nil {
		m.keyErrs = make(map[string]error)
	}
	if err == nil {
		delete(m.keyErrs, key)
		return
	}
	m.keyErrs[key] = err
}

func (m *MemoryStore) checkWriteLocked(key string) error {
	if m.writeErr != nil {
		return m.writeErr
	}
	return m.keyErrs[key]
}

func (m *MemoryStore) Get(key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *MemoryStore) Set(key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkWriteLocked(key); err != nil {
		return err
	}
	m.data[key] = append([]byte(nil), value...)
	return nil
}

func (m *MemoryStore) SetMany(values map[string][]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for key := range values {
		if err := m.checkWriteLocked(key); err != nil {
			return err
		}
	}
	for key, value := range values {
		m.data[key] = append([]byte(nil), value...)
	}
	return nil
}

func (m *MemoryStore) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkWriteLocked(key); err != nil {
		return err
	}
	delete(m.data, key)
	return nil
}

func (m *MemoryStore) Close() error {
	return nil
}
