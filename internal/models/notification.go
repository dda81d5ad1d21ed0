package models

import "time"

// NotificationLevel mirrors the toast styles the UI renders.
type NotificationLevel string

const (
	LevelInfo    NotificationLevel = "info"
	LevelSuccess NotificationLevel = "success"
	LevelWarning NotificationLevel = "warning"
	LevelError   NotificationLevel = "error"
)

// Event names carried on notifications.
const (
	EventConnectivityOnline  = "connectivity.online"
	EventConnectivityOffline = "connectivity.offline"
	EventQueuePending        = "queue.pending"
	EventQueueExhausted      = "queue.retry_exhausted"
	EventSyncStarted         = "sync.started"
	EventSyncCompleted       = "sync.completed"
	EventSyncFailed          = "sync.failed"
	EventSyncRefused         = "sync.refused"
	EventSessionCleared      = "session.cleared"
	EventBackupExported      = "backup.exported"
	EventBackupImported      = "backup.imported"
)

// Notification is a user-visible message raised by the sync core.
type Notification struct {
	Level     NotificationLevel `json:"level"`
	Event     string            `json:"event"`
	Message   string            `json:"message"`
	Kind      Kind              `json:"kind,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}
