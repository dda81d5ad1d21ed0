// Package tools stores the state of each productivity tool (notes,
// calculator history, post-its, tasks, solitaire stats) as one opaque JSON
// record per domain.
package tools

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"sync"

	"github.com/Nyvram23/Utility-Box/internal/errors"
	"github.com/Nyvram23/Utility-Box/internal/models"
	"github.com/Nyvram23/Utility-Box/internal/store"
)

// emptyState is returned for a domain that has never been written.
var emptyState = json.RawMessage("[]")

// Registry gives access to the five tool domains over one store.
type Registry struct {
	store store.Store
	mu    sync.Mutex
}

// NewRegistry creates a registry over st.
func NewRegistry(st store.Store) *Registry {
	return &Registry{store: st}
}

// Read returns the current state of kind, or [] when it has none.
func (r *Registry) Read(kind models.Kind) (json.RawMessage, error) {
	if !kind.Valid() {
		return nil, errors.New(errors.ErrNotFound, fmt.Sprintf("unknown tool %q", kind))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.readLocked(kind)
}

func (r *Registry) readLocked(kind models.Kind) (json.RawMessage, error) {
	data, err := r.store.Get(store.DomainKey(kind))
	if err != nil {
		if stderrors.Is(err, store.ErrNotFound) {
			return append(json.RawMessage(nil), emptyState...), nil
		}
		return nil, errors.Wrap(errors.ErrPersistence, "read "+string(kind), err)
	}
	return data, nil
}

// Write replaces the state of kind. data must be valid JSON.
func (r *Registry) Write(kind models.Kind, data json.RawMessage) error {
	if !kind.Valid() {
		return errors.New(errors.ErrNotFound, fmt.Sprintf("unknown tool %q", kind))
	}
	if !json.Valid(data) {
		return errors.New(errors.ErrInvalid, fmt.Sprintf("%s state is not valid JSON", kind))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.store.Set(store.DomainKey(kind), data); err != nil {
		return errors.Wrap(errors.ErrPersistence, "write "+string(kind), err)
	}
	return nil
}

// Snapshot returns the state of every domain.
func (r *Registry) Snapshot() (map[models.Kind]json.RawMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[models.Kind]json.RawMessage, len(models.Kinds()))
	for _, kind := range models.Kinds() {
		data, err := r.readLocked(kind)
		if err != nil {
			return nil, err
		}
		out[kind] = data
	}
	return out, nil
}

// Apply overwrites each domain present in states. Absent and null entries
// are skipped. Every entry is validated first and the domains are written
// in one atomic store call, so a failure leaves every domain unchanged.
func (r *Registry) Apply(states map[models.Kind]json.RawMessage) error {
	pending := make(map[models.Kind]json.RawMessage, len(states))
	for kind, data := range states {
		if len(data) == 0 || string(data) == "null" {
			continue
		}
		if !kind.Valid() {
			return errors.New(errors.ErrInvalid, fmt.Sprintf("unknown tool %q", kind))
		}
		if !json.Valid(data) {
			return errors.New(errors.ErrInvalid, fmt.Sprintf("%s state is not valid JSON", kind))
		}
		pending[kind] = data
	}

	if len(pending) == 0 {
		return nil
	}

	records := make(map[string][]byte, len(pending))
	for kind, data := range pending {
		records[store.DomainKey(kind)] = data
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.store.SetMany(records); err != nil {
		return errors.Wrap(errors.ErrPersistence, "write tool state", err)
	}
	return nil
}
