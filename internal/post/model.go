package post

import (
	"time"

	"github.com/google/uuid"
)

// Author is the slice of the user record a post listing shows
type Author struct {
	ID        uuid.UUID
	Username  string
	ImageFile string
}

type Post struct {
	ID         uuid.UUID
	AuthorID   uuid.UUID
	Author     Author
	Title      string
	Content    string
	DatePosted time.Time
}
