package models

import (
	"encoding/json"
	"time"
)

// MaxAttempts is the number of delivery attempts before an entry is dropped.
const MaxAttempts = 3

// QueueEntry represents one pending mutation awaiting delivery.
type QueueEntry struct {
	ID         string          `json:"id"`
	Kind       Kind            `json:"type"`
	Payload    json.RawMessage `json:"data"`
	EnqueuedAt time.Time       `json:"timestamp"`
	Attempts   int             `json:"retries"`
}

// SyncResult is the envelope returned by every remote call and by full sync.
type SyncResult struct {
	Success   bool            `json:"success"`
	Message   string          `json:"message,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     string          `json:"error,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// SyncStats is the snapshot exposed to UI collaborators.
type SyncStats struct {
	IsOnline       bool       `json:"isOnline"`
	LastSync       *time.Time `json:"lastSync"`
	PendingCount   int        `json:"pendingCount"`
	UserID         string     `json:"userId,omitempty"`
	AutoSyncActive bool       `json:"autoSyncActive"`
}
