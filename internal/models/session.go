package models

import "time"

// Session represents a user session held in Redis, keyed by bearer token.
type Session struct {
	UserID    string    `json:"userId"`
	Role      Role      `json:"role"`
	Email     string    `json:"email,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// IsExpired checks if session has expired
func (s *Session) IsExpired() bool {
	return !s.ExpiresAt.IsZero() && time.Now().After(s.ExpiresAt)
}

// Caller converts the session into a request caller identity.
func (s *Session) Caller() Caller {
	return Caller{
		UserID: s.UserID,
		Role:   s.Role,
		Email:  s.Email,
		Phone:  s.Phone,
	}
}
