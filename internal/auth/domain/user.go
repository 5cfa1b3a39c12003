package domain

import (
	"strings"
	"time"
)

// User is the durable identity record.
type User struct {
	ID           string
	Email        string // lower-cased, unique
	FirstName    string
	LastName     string
	PasswordHash string // argon2id PHC string
	IsVerified   bool

	VerificationToken  *string // fingerprint of the opaque token
	VerificationExpiry *time.Time
	ResetToken         *string // fingerprint of the opaque token
	ResetExpiry        *time.Time

	LoginAttempts  int
	LockUntil      *time.Time
	RefreshTokenID *string
	LastLogin      *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Profile is the client-facing projection of a User. It never carries the
// password hash, outstanding tokens or lockout state.
type Profile struct {
	ID         string     `json:"id"`
	Email      string     `json:"email"`
	FirstName  string     `json:"firstName"`
	LastName   string     `json:"lastName"`
	IsVerified bool       `json:"isVerified"`
	LastLogin  *time.Time `json:"lastLogin,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

// Profile projects the user.
func (u User) Profile() Profile {
	return Profile{
		ID:         u.ID,
		Email:      u.Email,
		FirstName:  u.FirstName,
		LastName:   u.LastName,
		IsVerified: u.IsVerified,
		LastLogin:  u.LastLogin,
		CreatedAt:  u.CreatedAt,
		UpdatedAt:  u.UpdatedAt,
	}
}

// NormalizeEmail is the canonical form used for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
