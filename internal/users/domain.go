package users

import "time"

// Account is a back-office user account. PasswordHash is bcrypt and never
// leaves the package boundary in API payloads or audit entries.
type Account struct {
	ID           string
	Username     string
	PasswordHash string
	RoleName     string
	Organization string
	Department   string
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
