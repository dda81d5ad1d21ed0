package models

import "time"

// Session is the persisted authentication state of the device.
// AuthToken is a mock placeholder produced by the simulated backend; it is not a credential.
type Session struct {
	AuthToken string     `json:"apiKey,omitempty"`
	UserID    string     `json:"userId,omitempty"`
	LastSync  *time.Time `json:"lastSync"`
}

// Authenticated reports whether the session carries a token.
func (s Session) Authenticated() bool {
	return s.AuthToken != ""
}

// User is the profile returned by a successful authentication.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// AuthResult is returned from Authenticate.
type AuthResult struct {
	Success bool   `json:"success"`
	User    User   `json:"user"`
	Token   string `json:"token"`
}
