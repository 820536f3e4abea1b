package entity

import "time"

// Identity is the authenticated user as seen by the cache contexts.
type Identity struct {
	ID    string `json:"id" firestore:"id"`
	Email string `json:"email" firestore:"email"`
}

// Session holds the credentials backing an Identity.
type Session struct {
	Identity     Identity  `json:"identity"`
	IDToken      string    `json:"id_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Expired reports whether the ID token is past its expiry, with a small skew allowance.
func (s *Session) Expired(now time.Time) bool {
	if s == nil || s.IDToken == "" {
		return true
	}
	if s.ExpiresAt.IsZero() {
		return false
	}
	return !now.Add(30 * time.Second).Before(s.ExpiresAt)
}
