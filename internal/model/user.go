// Package model defines domain entities for the application.
package model

import "time"

// User represents an account that owns API keys. Users are created on
// first authenticated access ("upsert on login") and never deleted by
// the application itself. LastLogin is refreshed on each uncached
// resolution; with the identity cache enabled it can trail actual
// activity by up to the cache TTL.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      *string   `json:"name,omitempty"`
	Image     *string   `json:"image,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	LastLogin time.Time `json:"lastLogin"`
}

// UserProfile carries the display attributes delivered by the identity
// provider on each login. Name and image are last-write-wins; nil means
// the provider sent nothing and the stored value is kept.
type UserProfile struct {
	Email string
	Name  *string
	Image *string
}
