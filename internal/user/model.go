package user

import (
	"time"

	"github.com/google/uuid"
)

// DefaultImageFile is the profile picture every new account starts with
const DefaultImageFile = "default.jpg"

// Column widths of the users table
const (
	MinUsernameLength = 2
	MaxUsernameLength = 20
	MaxEmailLength    = 120
)

// UsernameReservedChars may not appear in a username, which is used as a
// path segment in /user/{username}
const UsernameReservedChars = `/?#%\`

type User struct {
	ID           uuid.UUID `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"` // Never expose password hash in JSON
	ImageFile    string    `json:"image_file"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Changes lists the fields an account update may touch.
// A nil ImageFile leaves the current picture in place.
type Changes struct {
	Username  string
	Email     string
	ImageFile *string
}
