// Package notify delivers user-visible notifications raised by the sync core.
package notify

import (
	"sync"
	"time"

	"github.com/Nyvram23/Utility-Box/internal/logging"
	"github.com/Nyvram23/Utility-Box/internal/models"
)

// Notifier receives notifications. Implementations must not block for long;
// they are called from the queue drain and sync paths.
type Notifier interface {
	Notify(n models.Notification)
}

// Func adapts a plain function to Notifier.
type Func func(n models.Notification)

// Notify calls f(n).
func (f Func) Notify(n models.Notification) { f(n) }

// New builds a notification stamped with the current time.
func New(level models.NotificationLevel, event, message string) models.Notification {
	return models.Notification{
		Level:     level,
		Event:     event,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}
}

// Multi fans a notification out to every non-nil notifier.
func Multi(notifiers ...Notifier) Notifier {
	var list []Notifier
	for _, n := range notifiers {
		if n != nil {
			list = append(list, n)
		}
	}
	return Func(func(n models.Notification) {
		for _, target := range list {
			target.Notify(n)
		}
	})
}

// Log writes notifications to the structured log.
type Log struct{}

// Notify logs n at a level matching its severity.
func (Log) Notify(n models.Notification) {
	ctx := map[string]interface{}{"event": n.Event}
	if n.Kind != "" {
		ctx["kind"] = string(n.Kind)
	}

	switch n.Level {
	case models.LevelError:
		logging.Error(n.Message, nil, ctx)
	case models.LevelWarning:
		logging.Warn(n.Message, ctx)
	default:
		logging.Info(n.Message, ctx)
	}
}

// Recorder keeps every notification in memory.
type Recorder struct {
	mu    sync.Mutex
	items []models.Notification
}

// Notify appends n.
func (r *Recorder) Notify(n models.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, n)
}

// All returns a copy of the recorded notifications in arrival order.
func (r *Recorder) All() []models.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.Notification(nil), r.items...)
}

// Count returns how many notifications carried event.
func (r *Recorder) Count(event string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, item := range r.items {
		if item.Event == event {
			n++
		}
	}
	return n
}

// Last returns the most recent notification, if any.
func (r *Recorder) Last() (models.Notification, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.items) == 0 {
		return models.Notification{}, false
	}
	return r.items[len(r.items)-1], true
}
