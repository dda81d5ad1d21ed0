// Package models provides data model definitions for the Utility Box sync core.
package models

import "fmt"

// Kind identifies a tool domain whose mutations travel through the sync queue.
type Kind string

const (
	KindNotes      Kind = "notes"
	KindCalculator Kind = "calculator"
	KindPostits    Kind = "postits"
	KindTasks      Kind = "tasks"
	KindSolitaire  Kind = "solitaire"

	// KindFullSync is the aggregate endpoint. It is never queued.
	KindFullSync Kind = "full-sync"
)

// Kinds returns the five queueable tool domains in a stable order.
func Kinds() []Kind {
	return []Kind{KindNotes, KindCalculator, KindPostits, KindTasks, KindSolitaire}
}

// Valid reports whether k is a queueable tool domain.
func (k Kind) Valid() bool {
	switch k {
	case KindNotes, KindCalculator, KindPostits, KindTasks, KindSolitaire:
		return true
	}
	return false
}

// String returns the string representation of the kind.
func (k Kind) String() string {
	return string(k)
}

// ParseKind converts s to a queueable Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !k.Valid() {
		return "", fmt.Errorf("unknown kind %q", s)
	}
	return k, nil
}
