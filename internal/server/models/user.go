package models

import "time"

// User is a directory row. PasswordHash is a bcrypt hash and never leaves
// the directory package.
type User struct {
	Identity
	PasswordHash string
	CreatedAt    time.Time
}
