package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/Nyvram23/Utility-Box/internal/errors"
	"github.com/Nyvram23/Utility-Box/internal/logging"
	"github.com/Nyvram23/Utility-Box/internal/models"
)

// TokenSource yields the current auth token, or "" when there is no session.
type TokenSource func() string

// FailureFunc lets callers inject transport failures. A non-nil return fails
// the call after the latency has been paid.
type FailureFunc func(endpoint models.Kind, payload json.RawMessage) error

// SimulatorConfig configures a Simulator.
type SimulatorConfig struct {
	MinLatency time.Duration
	MaxLatency time.Duration
	Fail       FailureFunc
}

// DefaultSimulatorConfig returns the standard latency range [500ms, 1500ms).
func DefaultSimulatorConfig() SimulatorConfig {
	return SimulatorConfig{
		MinLatency: 500 * time.Millisecond,
		MaxLatency: 1500 * time.Millisecond,
	}
}

// Simulator is an in-process Transport that echoes its input.
type Simulator struct {
	token  TokenSource
	config SimulatorConfig
	now    func() time.Time
}

// NewSimulator creates a simulator authenticated through token.
func NewSimulator(token TokenSource, config SimulatorConfig) *Simulator {
	return &Simulator{
		token:  token,
		config: config,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// SimulateLatency waits for a random duration in [MinLatency, MaxLatency).
// It returns ctx.Err() if the context ends first.
func (s *Simulator) SimulateLatency(ctx context.Context) error {
	d := s.config.MinLatency
	if span := s.config.MaxLatency - s.config.MinLatency; span > 0 {
		d += time.Duration(rand.Int63n(int64(span)))
	}
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Call implements Transport.
func (s *Simulator) Call(ctx context.Context, method string, endpoint models.Kind, payload json.RawMessage) (*models.SyncResult, error) {
	if s.token == nil || s.token() == "" {
		return nil, errors.New(errors.ErrNotAuthenticated, "not authenticated")
	}

	if err := s.SimulateLatency(ctx); err != nil {
		return nil, err
	}

	ep, ok := EndpointFor(endpoint)
	if !ok || method != MethodPost {
		return nil, errors.New(errors.ErrUnknownEndpoint, fmt.Sprintf("endpoint not found: %s %s", method, endpoint))
	}

	if s.config.Fail != nil {
		if err := s.config.Fail(endpoint, payload); err != nil {
			return nil, errors.Wrap(errors.ErrSyncFailed, "request to "+ep.Path+" failed", err)
		}
	}

	data, err := s.respond(endpoint, ep, payload)
	if err != nil {
		return nil, err
	}

	logging.Debug("Simulated sync call", map[string]interface{}{
		"endpoint": ep.Path,
		"bytes":    len(payload),
	})

	return &models.SyncResult{
		Success:   true,
		Message:   ep.Message,
		Data:      data,
		Timestamp: s.now(),
	}, nil
}

// respond builds the echoed response body. Per-kind requests wrap the payload
// under ep.Field and the response rewraps it under the kind's name; full sync
// echoes the aggregate unchanged.
func (s *Simulator) respond(endpoint models.Kind, ep Endpoint, payload json.RawMessage) (json.RawMessage, error) {
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}

	if endpoint == models.KindFullSync {
		return append(json.RawMessage(nil), payload...), nil
	}

	request, err := json.Marshal(map[string]json.RawMessage{ep.Field: payload})
	if err != nil {
		return nil, errors.Wrap(errors.ErrInvalid, "encode request body", err)
	}

	var body map[string]json.RawMessage
	if err := json.Unmarshal(request, &body); err != nil {
		return nil, errors.Wrap(errors.ErrInvalid, "decode request body", err)
	}

	data, err := json.Marshal(map[string]json.RawMessage{string(endpoint): body[ep.Field]})
	if err != nil {
		return nil, errors.Wrap(errors.ErrInvalid, "encode response body", err)
	}
	return data, nil
}
