// Package model defines the data structures used throughout the application.
// In Go, we use structs to represent our data, and small string types with
// Parse functions for every closed set of values (roles, statuses, tiers) so
// raw strings are rejected once at the boundary and never compared again.
package model

import "time"

// UserStatus is the lifecycle state of an account. Accounts are never hard
// deleted; suspension hides them from circle resolution.
type UserStatus string

const (
	UserActive    UserStatus = "active"
	UserSuspended UserStatus = "suspended"
)

// User represents a registered account.
//
// IDs are SQLite integer rowids. Anywhere a viewer id is accepted, a value
// <= 0 means "anonymous".
type User struct {
	ID           int64      `json:"id"`
	Email        string     `json:"email"`
	DisplayName  string     `json:"displayName"`
	Username     string     `json:"username"`
	PasswordHash string     `json:"-"`
	Status       UserStatus `json:"status"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// IsAnonymous reports whether id denotes a signed-out viewer.
func IsAnonymous(id int64) bool {
	return id <= 0
}
