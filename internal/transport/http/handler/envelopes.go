package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/shopnest-api/internal/application/auth"
	"github.com/shopnest-api/internal/domain"
)

// MessageEnvelope is the generic response wrapper.
type MessageEnvelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// AuthEnvelope wraps every /auth response.
type AuthEnvelope struct {
	Success              bool           `json:"success"`
	Message              string         `json:"message,omitempty"`
	RequiresVerification bool           `json:"requiresVerification,omitempty"`
	VerificationSent     *auth.CodeSent `json:"verificationSent,omitempty"`
	User                 *SafeUser      `json:"user,omitempty"`
	Token                string         `json:"token,omitempty"`
	RefreshToken         string         `json:"refreshToken,omitempty"`
}

// SessionEnvelope wraps current-session responses.
type SessionEnvelope struct {
	Success bool         `json:"success"`
	Session *SafeSession `json:"session,omitempty"`
	User    *SafeUser    `json:"user,omitempty"`
}

// UsersPageEnvelope wraps one page of the admin user listing.
type UsersPageEnvelope struct {
	Success    bool        `json:"success"`
	Data       []*SafeUser `json:"data"`
	NextCursor string      `json:"next_cursor,omitempty"`
}

// SafeUser is the client-facing view of a user. It never carries the
// password hash.
type SafeUser struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Email    string  `json:"email"`
	Role     string  `json:"role"`
	Phone    *string `json:"phone,omitempty"`
	Verified bool    `json:"verified"`
}

type SafeSession struct {
	ID               string    `json:"id"`
	CreatedAt        time.Time `json:"created"`
	RefreshExpiresAt int64     `json:"refresh_expires_at"`
}

func toSafeUser(u *domain.User) *SafeUser {
	if u == nil {
		return nil
	}
	return &SafeUser{
		ID:       u.UserID,
		Name:     u.Name,
		Email:    u.Email,
		Role:     u.Role,
		Phone:    u.Phone,
		Verified: u.Verified,
	}
}

func toSafeSession(s *domain.Session) *SafeSession {
	if s == nil {
		return nil
	}
	return &SafeSession{ID: s.SessionID, CreatedAt: s.CreatedAt, RefreshExpiresAt: s.RefreshExpiresAt}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, MessageEnvelope{Success: false, Message: msg})
}

// decode reads a JSON body into dst, rejecting unknown fields.
func decode(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
