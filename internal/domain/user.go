package domain

import "time"

// User represents a registered account. Users are never mutated after creation.
type User struct {
	ID           string
	Email        string
	PasswordHash []byte
	CreatedAt    time.Time
}
