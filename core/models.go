package core

import "time"

// Account is the canonical identity every credential path resolves to
//
// It may hold a local credential, federated identities, or both
type Account struct {
	ID                  string            `json:"id"`
	Username            *string           `json:"username,omitempty"`
	PasswordHash        *string           `json:"-"` // Never expose in JSON
	DisplayName         string            `json:"displayName,omitempty"`
	FederatedIdentities map[string]string `json:"federatedIdentities,omitempty"` // provider -> subject id
	Secrets             []string          `json:"secrets"`
	CreatedAt           time.Time         `json:"createdAt"`
	UpdatedAt           time.Time         `json:"updatedAt"`
}

// HasLocalCredential reports whether the account was created by the password flow
func (a *Account) HasLocalCredential() bool {
	return a != nil && a.Username != nil && a.PasswordHash != nil
}

// Session represents an active login session
//
// A session only points at an account. It never carries credential material.
type Session struct {
	ID        string    `json:"id"`
	AccountID string    `json:"accountId"`
	TokenHash string    `json:"-"` // Never expose in JSON (security!)
	ExpiresAt time.Time `json:"expiresAt"`
	CreatedAt time.Time `json:"createdAt"`
}

// Expired reports whether the session is past its expiry at t
func (s *Session) Expired(t time.Time) bool {
	return !t.Before(s.ExpiresAt)
}

// SessionData combines account and session info
// The model returned to clients
type SessionData struct {
	Account *Account `json:"account"`
	Session *Session `json:"session"`
}

// PublicSecret is one entry of the public secrets listing
type PublicSecret struct {
	OwnerDisplayName string `json:"owner,omitempty"`
	Text             string `json:"text"`
}

// ProviderProfile is what an OAuth provider tells us about the user
type ProviderProfile struct {
	Provider    string `json:"provider"`
	SubjectID   string `json:"subjectId"`
	DisplayName string `json:"displayName,omitempty"`
}
