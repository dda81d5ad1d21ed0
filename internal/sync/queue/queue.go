// Package queue provides the durable sync queue for offline operations.
//
// Entries are delivered strictly in FIFO order, one per drain invocation.
// A failing head entry is retried on later drains and blocks the entries
// behind it until it succeeds or exhausts its attempt budget.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/Nyvram23/Utility-Box/internal/errors"
	"github.com/Nyvram23/Utility-Box/internal/logging"
	"github.com/Nyvram23/Utility-Box/internal/models"
	"github.com/Nyvram23/Utility-Box/internal/notify"
	"github.com/Nyvram23/Utility-Box/internal/store"
	"github.com/Nyvram23/Utility-Box/internal/sync/remote"
	"github.com/Nyvram23/Utility-Box/internal/uuid"
)

// Config holds queue tuning.
type Config struct {
	MaxAttempts int
	// MaxSize caps the number of pending entries. 0 means unbounded.
	MaxSize    int
	DrainDelay time.Duration
}

// DefaultConfig returns the standard queue settings.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: models.MaxAttempts,
		DrainDelay:  1 * time.Second,
	}
}

// Gates report the preconditions for draining.
type Gates struct {
	Online        func() bool
	Authenticated func() bool
}

// SyncQueue manages pending mutations with bounded retry.
type SyncQueue struct {
	mu      sync.Mutex
	entries []models.QueueEntry

	store     store.Store
	transport remote.Transport
	notifier  notify.Notifier
	gates     Gates
	config    Config

	draining bool
	next     *time.Timer
	stopped  bool
	inflight sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

// NewSyncQueue creates an empty queue. Call Load to restore persisted entries.
func NewSyncQueue(st store.Store, transport remote.Transport, notifier notify.Notifier, gates Gates, config Config) *SyncQueue {
	if config.MaxAttempts < 1 {
		config.MaxAttempts = models.MaxAttempts
	}
	if notifier == nil {
		notifier = notify.Log{}
	}
	if gates.Online == nil {
		gates.Online = func() bool { return true }
	}
	if gates.Authenticated == nil {
		gates.Authenticated = func() bool { return true }
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &SyncQueue{
		entries:   []models.QueueEntry{},
		store:     st,
		transport: transport,
		notifier:  notifier,
		gates:     gates,
		config:    config,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Load replaces the in-memory queue with the persisted record. Entries that
// violate the queue invariants (unknown kind, duplicate id, exhausted
// attempts) are discarded. On a read or decode failure the queue starts empty.
func (q *SyncQueue) Load() error {
	var saved []models.QueueEntry
	_, err := store.LoadJSON(q.store, store.KeyQueue, &saved)

	q.mu.Lock()
	defer q.mu.Unlock()

	q.entries = []models.QueueEntry{}
	if err != nil {
		return errors.Wrap(errors.ErrPersistence, "failed to load sync queue", err)
	}

	seen := make(map[string]bool, len(saved))
	for _, e := range saved {
		if !e.Kind.Valid() || e.ID == "" || seen[e.ID] || e.Attempts < 0 || e.Attempts >= q.config.MaxAttempts {
			logging.Warn("Discarding invalid queue entry", map[string]interface{}{
				"id":       e.ID,
				"type":     string(e.Kind),
				"attempts": e.Attempts,
			})
			continue
		}
		seen[e.ID] = true
		q.entries = append(q.entries, e)
	}

	logging.Info("Sync queue loaded", map[string]interface{}{"pending": len(q.entries)})
	return nil
}

// Enqueue appends a mutation and persists the queue. When online a drain is
// started in the background. It fails only on invalid input or when a
// configured MaxSize is reached.
func (q *SyncQueue) Enqueue(kind models.Kind, payload json.RawMessage) (string, error) {
	if !kind.Valid() {
		return "", errors.New(errors.ErrInvalid, fmt.Sprintf("unknown sync kind %q", kind))
	}
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}
	if !json.Valid(payload) {
		return "", errors.New(errors.ErrInvalid, "payload is not valid JSON")
	}

	q.mu.Lock()
	if q.config.MaxSize > 0 && len(q.entries) >= q.config.MaxSize {
		q.mu.Unlock()
		return "", errors.New(errors.ErrQueueFull, fmt.Sprintf("queue is full (max size: %d)", q.config.MaxSize))
	}

	entry := models.QueueEntry{
		ID:         uuid.NewEntryID(),
		Kind:       kind,
		Payload:    append(json.RawMessage(nil), payload...),
		EnqueuedAt: time.Now().UTC(),
		Attempts:   0,
	}
	q.entries = append(q.entries, entry)
	q.persistLocked()
	q.mu.Unlock()

	logging.Debug("Enqueued sync entry", map[string]interface{}{"id": entry.ID, "type": string(kind)})

	if q.gates.Online() {
		go q.Drain(q.ctx)
	}

	return entry.ID, nil
}

// Drain attempts delivery of the head entry and reports whether it did any
// work. It refuses when stopped, empty, offline, unauthenticated, or when
// another drain is in progress. After handling the head, the next drain is
// scheduled DrainDelay later if entries remain.
func (q *SyncQueue) Drain(ctx context.Context) bool {
	if !q.gates.Online() || !q.gates.Authenticated() {
		return false
	}

	q.mu.Lock()
	if q.stopped || q.draining || len(q.entries) == 0 {
		q.mu.Unlock()
		return false
	}
	q.draining = true
	q.inflight.Add(1)
	head := q.entries[0]
	q.mu.Unlock()

	defer q.inflight.Done()

	err := q.deliver(ctx, head)

	q.mu.Lock()
	exhausted := false
	switch {
	case len(q.entries) == 0 || q.entries[0].ID != head.ID:
		// cleared while the call was in flight
	case err == nil:
		q.entries = q.entries[1:]
		q.persistLocked()
	case ctx.Err() != nil:
		// cancelled by shutdown; not a delivery attempt
	default:
		q.entries[0].Attempts++
		if q.entries[0].Attempts >= q.config.MaxAttempts {
			q.entries = q.entries[1:]
			exhausted = true
		}
		q.persistLocked()
	}
	q.draining = false
	if len(q.entries) > 0 && !q.stopped {
		q.scheduleLocked()
	}
	q.mu.Unlock()

	if err == nil {
		logging.Debug("Sync entry delivered", map[string]interface{}{"id": head.ID, "type": string(head.Kind)})
	} else if exhausted {
		logging.ErrorWithCode("Sync entry dropped after retries", string(errors.ErrRetryExhausted), err, map[string]interface{}{
			"id":   head.ID,
			"type": string(head.Kind),
		})
		q.notifier.Notify(models.Notification{
			Level:     models.LevelError,
			Event:     models.EventQueueExhausted,
			Message:   fmt.Sprintf("Falha na sincronização de %s após %d tentativas", head.Kind, q.config.MaxAttempts),
			Kind:      head.Kind,
			Timestamp: time.Now().UTC(),
		})
	} else {
		logging.Warn("Sync entry failed, will retry", map[string]interface{}{
			"id":    head.ID,
			"type":  string(head.Kind),
			"error": err.Error(),
		})
	}

	return true
}

// deliver sends one entry. A nil error means the backend accepted it.
func (q *SyncQueue) deliver(ctx context.Context, entry models.QueueEntry) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during sync call: %v", r)
		}
	}()

	res, err := q.transport.Call(ctx, remote.MethodPost, entry.Kind, entry.Payload)
	if err != nil {
		return err
	}
	if res == nil || !res.Success {
		msg := "rejected by backend"
		if res != nil && res.Error != "" {
			msg = res.Error
		}
		return errors.New(errors.ErrSyncFailed, msg)
	}
	return nil
}

// scheduleLocked arms the continuation unless one is already pending.
func (q *SyncQueue) scheduleLocked() {
	if q.next != nil {
		return
	}
	var t *time.Timer
	t = time.AfterFunc(q.config.DrainDelay, func() {
		q.mu.Lock()
		if q.next == t {
			q.next = nil
		}
		q.mu.Unlock()
		q.Drain(q.ctx)
	})
	q.next = t
}

// FlushPending announces and drains pending entries after connectivity returns.
func (q *SyncQueue) FlushPending(ctx context.Context) {
	n := q.Len()
	if n == 0 {
		return
	}

	q.notifier.Notify(notify.New(models.LevelInfo, models.EventQueuePending,
		fmt.Sprintf("Sincronizando %d itens pendentes...", n)))
	q.Drain(ctx)
}

// Len returns the number of pending entries.
func (q *SyncQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// List returns a copy of the pending entries in delivery order.
func (q *SyncQueue) List() []models.QueueEntry {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.snapshotLocked()
}

// Clear empties the queue, cancels any pending continuation and persists.
func (q *SyncQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.next != nil {
		q.next.Stop()
		q.next = nil
	}
	q.entries = []models.QueueEntry{}
	q.persistLocked()
}

// Stop cancels the pending continuation and any in-flight call, then waits
// for the running drain to finish. The queue refuses to drain afterwards.
func (q *SyncQueue) Stop() {
	q.mu.Lock()
	q.stopped = true
	if q.next != nil {
		q.next.Stop()
		q.next = nil
	}
	q.mu.Unlock()

	q.cancel()
	q.inflight.Wait()
}

func (q *SyncQueue) snapshotLocked() []models.QueueEntry {
	out := make([]models.QueueEntry, len(q.entries))
	for i, e := range q.entries {
		e.Payload = append(json.RawMessage(nil), e.Payload...)
		out[i] = e
	}
	return out
}

// persistLocked rewrites the whole queue record. Failures are logged and the
// in-memory queue stays authoritative.
func (q *SyncQueue) persistLocked() {
	if err := store.SaveJSON(q.store, store.KeyQueue, q.snapshotLocked()); err != nil {
		logging.ErrorWithCode("Failed to persist sync queue", string(errors.ErrPersistence), err, map[string]interface{}{
			"pending": len(q.entries),
		})
	}
}
