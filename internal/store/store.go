// Package store provides the local key-value persistence used by the sync core.
//
// Every record is stored whole under a single key and rewritten in full on
// each save; there are no partial updates.
package store

import (
	"encoding/json"
	stderrors "errors"
	"fmt"

	"github.com/Nyvram23/Utility-Box/internal/config"
	"github.com/Nyvram23/Utility-Box/internal/models"
)

// Record keys.
const (
	KeySession = "utilityBox_session"
	KeyQueue   = "utilityBox_syncQueue"
)

// ErrNotFound is returned by Get when a key has never been written.
var ErrNotFound = stderrors.New("store: key not found")

// Store is a synchronous string-keyed byte store.
type Store interface {
	Get(key string) ([]byte, error)
	Set(key string, value []byte) error
	// SetMany writes every record or none of them.
	SetMany(values map[string][]byte) error
	Delete(key string) error
	Close() error
}

// DomainKey returns the record key holding a tool domain's data.
func DomainKey(kind models.Kind) string {
	if kind == models.KindSolitaire {
		return "utilityBox_solitaire_stats"
	}
	return "utilityBox_" + string(kind)
}

// LoadJSON decodes the record at key into v. It reports false when the key is absent.
func LoadJSON(s Store, key string, v interface{}) (bool, error) {
	data, err := s.Get(key)
	if err != nil {
		if stderrors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return true, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return true, nil
}

// SaveJSON encodes v and writes it whole under key.
func SaveJSON(s Store, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	return s.Set(key, data)
}

// Open creates the store selected by cfg.
func Open(cfg *config.Config) (Store, error) {
	switch cfg.StoreBackend {
	case config.BackendMemory:
		return NewMemoryStore(), nil
	case config.BackendSQLite:
		return OpenSQLite(cfg.DataDir)
	case config.BackendBadger:
		return OpenBadger(cfg.DataDir)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}
