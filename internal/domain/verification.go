package domain

import (
	"crypto/subtle"
	"encoding/json"
	"time"
)

// Verification purposes.
const (
	PurposeRegister = "register"
	PurposeLogin    = "login"
)

// PendingVerification is an issued, not yet consumed one-time code.
// PK: identifier (normalised email). At most one entry exists per identifier.
// TTL mirrors ExpiresAt as Unix seconds so DynamoDB can reap abandoned rows.
type PendingVerification struct {
	Identifier string          `json:"identifier" dynamodbav:"identifier"`
	Code       string          `json:"code" dynamodbav:"code"`
	Purpose    string          `json:"purpose" dynamodbav:"purpose"`
	Payload    json.RawMessage `json:"payload,omitempty" dynamodbav:"payload"`
	CreatedAt  time.Time       `json:"created_at" dynamodbav:"created_at"`
	ExpiresAt  time.Time       `json:"expires_at" dynamodbav:"expires_at"`
	TTL        int64           `json:"-" dynamodbav:"ttl"`
}

// Expired reports whether the entry is past its hard invalidation boundary.
// An entry checked exactly at ExpiresAt is still valid.
func (v *PendingVerification) Expired(now time.Time) bool {
	return now.After(v.ExpiresAt)
}

// Check evaluates a submitted code against the entry. Expiry wins over a
// mismatch so a stale entry is always reported (and purged) as expired.
func (v *PendingVerification) Check(code string, now time.Time) error {
	if v.Expired(now) {
		return ErrCodeExpired
	}
	if subtle.ConstantTimeCompare([]byte(v.Code), []byte(code)) != 1 {
		return ErrCodeMismatch
	}
	return nil
}

// RegistrationPayload is the not-yet-created account attached to a
// register-purpose verification.
type RegistrationPayload struct {
	Name         string  `json:"name"`
	Email        string  `json:"email"`
	PasswordHash string  `json:"password_hash"`
	Role         string  `json:"role"`
	Phone        *string `json:"phone,omitempty"`
}

// LoginPayload references the already-authenticated user of a login-purpose
// verification.
type LoginPayload struct {
	UserID string `json:"user_id"`
}
