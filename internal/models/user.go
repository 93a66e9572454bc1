package models

import "time"

// UserStatus is the lifecycle state persisted on a profile. Profiles are never
// deleted, only transitioned.
type UserStatus string

const (
	StatusNew        UserStatus = "new"
	StatusPending    UserStatus = "pending"
	StatusTrial      UserStatus = "trial"
	StatusRegistered UserStatus = "registered"
	StatusExpired    UserStatus = "expired"
	StatusSuspended  UserStatus = "suspended"
)

// Valid reports whether s is one of the known statuses.
func (s UserStatus) Valid() bool {
	switch s {
	case StatusNew, StatusPending, StatusTrial, StatusRegistered, StatusExpired, StatusSuspended:
		return true
	}
	return false
}

// UserProfile is the durable record of a chat user.
type UserProfile struct {
	ID                  string     `json:"id"`
	Name                string     `json:"name"`
	Phone               string     `json:"phone"`
	Location            string     `json:"location"`
	Status              UserStatus `json:"status"`
	IsAdmin             bool       `json:"is_admin"`
	MembershipExpiresAt *time.Time `json:"membership_expires_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// MembershipExpired reports whether a time-boxed membership has lapsed at now.
func (u *UserProfile) MembershipExpired(now time.Time) bool {
	if u.MembershipExpiresAt == nil {
		return false
	}
	return !now.Before(*u.MembershipExpiresAt)
}
