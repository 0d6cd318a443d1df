// Package model defines the data structures used throughout the application.
// In Go, we use structs to represent our data — plain data carriers shared by
// the repository, service, and handler layers.
package model

import "time"

// User represents a registered account.
//
// Polly supports two ways in: email/password registration and GitHub OAuth.
// Password accounts have a bcrypt hash in PasswordHash and GitHubID == 0.
// OAuth accounts have a non-zero GitHubID and an empty PasswordHash.
// Both kinds get an internal xid as their primary key so the rest of the app
// never cares which identity provider created the account.
//
// PasswordHash carries `json:"-"` so it can never leak into an API response,
// no matter which handler serialises the user.
type User struct {
	ID           string    `json:"id"        db:"id"`
	Email        string    `json:"email"     db:"email"`
	Username     string    `json:"username"  db:"username"`
	PasswordHash string    `json:"-"         db:"password_hash"`
	GitHubID     int64     `json:"-"         db:"github_id"` // 0 unless the account was created via GitHub OAuth
	AvatarURL    string    `json:"avatarUrl" db:"avatar_url"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt" db:"updated_at"`
}
