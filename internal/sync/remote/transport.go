// Package remote provides the client side of the sync backend.
//
// The backend is simulated: calls pay a randomized latency and echo their
// input inside a success envelope. Transport is an interface so a real
// backend, or injected failures, drive the same bounded-retry path in the
// queue.
package remote

import (
	"context"
	"encoding/json"

	"github.com/Nyvram23/Utility-Box/internal/models"
)

// MethodPost is the only method the sync endpoints accept.
const MethodPost = "POST"

// Transport performs one round trip against the sync backend.
type Transport interface {
	Call(ctx context.Context, method string, endpoint models.Kind, payload json.RawMessage) (*models.SyncResult, error)
}

// Endpoint describes how one kind is addressed on the backend.
type Endpoint struct {
	Path string
	// Field wraps the payload in the request body, e.g. {"history": ...}.
	Field string
	// Message is returned in the success envelope.
	Message string
}

var endpoints = map[models.Kind]Endpoint{
	models.KindNotes:      {Path: "/notes/sync", Field: "notes", Message: "Notas sincronizadas"},
	models.KindCalculator: {Path: "/calculator/sync", Field: "history", Message: "Histórico da calculadora sincronizado"},
	models.KindPostits:    {Path: "/postits/sync", Field: "postits", Message: "Post-its sincronizados"},
	models.KindTasks:      {Path: "/tasks/sync", Field: "tasks", Message: "Tarefas sincronizadas"},
	models.KindSolitaire:  {Path: "/solitaire/sync", Field: "stats", Message: "Estatísticas do jogo sincronizadas"},
	models.KindFullSync:   {Path: "/sync/all", Message: "Sincronização completa realizada"},
}

// EndpointFor returns the endpoint serving kind.
func EndpointFor(kind models.Kind) (Endpoint, bool) {
	ep, ok := endpoints[kind]
	return ep, ok
}
