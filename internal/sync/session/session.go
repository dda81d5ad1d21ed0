// Package session owns the device's simulated authentication state.
//
// Tokens issued here are mock placeholders shaped like a JWT. They are
// reversible base64 and carry no signature; nothing may treat them as a
// security mechanism.
package session

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Nyvram23/Utility-Box/internal/errors"
	"github.com/Nyvram23/Utility-Box/internal/logging"
	"github.com/Nyvram23/Utility-Box/internal/models"
	"github.com/Nyvram23/Utility-Box/internal/store"
	"github.com/Nyvram23/Utility-Box/internal/uuid"
)

// TokenTTL is the expiry written into placeholder tokens.
const TokenTTL = 24 * time.Hour

// DelayFunc pays the simulated network latency of the login round trip.
type DelayFunc func(ctx context.Context) error

// Manager holds the current session and persists every change.
type Manager struct {
	mu      sync.RWMutex
	current models.Session
	store   store.Store
	delay   DelayFunc
	now     func() time.Time
}

// NewManager creates a manager with an empty session. A nil delay skips the
// simulated latency.
func NewManager(st store.Store, delay DelayFunc) *Manager {
	if delay == nil {
		delay = func(ctx context.Context) error { return ctx.Err() }
	}
	return &Manager{
		store: st,
		delay: delay,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Load restores the persisted session. A corrupted record leaves the
// session empty.
func (m *Manager) Load() error {
	var s models.Session
	_, err := store.LoadJSON(m.store, store.KeySession, &s)

	m.mu.Lock()
	defer m.mu.Unlock()

	if err != nil {
		m.current = models.Session{}
		return errors.Wrap(errors.ErrPersistence, "failed to load session", err)
	}
	m.current = s
	return nil
}

// Current returns a copy of the session.
func (m *Manager) Current() models.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return copySession(m.current)
}

// Token returns the auth token, or "" when logged out.
func (m *Manager) Token() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current.AuthToken
}

// Authenticated reports whether a token is present.
func (m *Manager) Authenticated() bool {
	return m.Token() != ""
}

// Authenticate fabricates a session for any non-empty email and password.
// No credential is verified.
func (m *Manager) Authenticate(ctx context.Context, email, password string) (*models.AuthResult, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, errors.New(errors.ErrInvalidCredentials, "Credenciais inválidas")
	}

	if err := m.delay(ctx); err != nil {
		return nil, errors.Wrap(errors.ErrInternal, "authentication interrupted", err)
	}

	userID := uuid.New()
	now := m.now()
	token, err := placeholderToken(userID, now)
	if err != nil {
		return nil, errors.Wrap(errors.ErrInternal, "failed to build session token", err)
	}

	m.mu.Lock()
	m.current = models.Session{AuthToken: token, UserID: userID, LastSync: &now}
	m.persistLocked()
	m.mu.Unlock()

	logging.Info("Session created", map[string]interface{}{"user_id": userID})

	return &models.AuthResult{
		Success: true,
		User: models.User{
			ID:    userID,
			Email: email,
			Name:  strings.SplitN(email, "@", 2)[0],
		},
		Token: token,
	}, nil
}

// MarkSynced records a successful full sync.
func (m *Manager) MarkSynced(at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	at = at.UTC()
	m.current.LastSync = &at
	m.persistLocked()
}

// Clear drops every session field and removes the record.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.current = models.Session{}
	if err := m.store.Delete(store.KeySession); err != nil {
		logging.ErrorWithCode("Failed to remove session", string(errors.ErrPersistence), err)
	}
}

func (m *Manager) persistLocked() {
	if err := store.SaveJSON(m.store, store.KeySession, m.current); err != nil {
		logging.ErrorWithCode("Failed to persist session", string(errors.ErrPersistence), err)
	}
}

func copySession(s models.Session) models.Session {
	if s.LastSync != nil {
		t := *s.LastSync
		s.LastSync = &t
	}
	return s
}

// placeholderToken builds header.payload.signature, each part base64.
// The signature is a fixed string plus the issue time, not a MAC.
func placeholderToken(userID string, issued time.Time) (string, error) {
	header, err := json.Marshal(map[string]string{"alg": "HS256", "typ": "JWT"})
	if err != nil {
		return "", err
	}
	payload, err := json.Marshal(struct {
		UserID string `json:"userId"`
		Exp    int64  `json:"exp"`
	}{
		UserID: userID,
		Exp:    issued.Add(TokenTTL).UnixMilli(),
	})
	if err != nil {
		return "", err
	}
	signature := fmt.Sprintf("utilitybox_secret_key_%d", issued.UnixMilli())

	enc := base64.StdEncoding
	return enc.EncodeToString(header) + "." + enc.EncodeToString(payload) + "." + enc.EncodeToString([]byte(signature)), nil
}
