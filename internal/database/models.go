package database

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Unique constraint names, matched when translating lib/pq errors
const (
	UsersUsernameKey = "users_username_key"
	UsersEmailKey    = "users_email_key"
)

// User is the row shape of the users table
type User struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID           uuid.UUID `bun:"id,pk,type:uuid"`
	Username     string    `bun:"username,notnull"`
	Email        string    `bun:"email,notnull"`
	PasswordHash string    `bun:"password_hash,notnull"`
	ImageFile    string    `bun:"image_file,notnull"`
	CreatedAt    time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt    time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

// Post is the row shape of the posts table
type Post struct {
	bun.BaseModel `bun:"table:posts,alias:p"`

	ID         uuid.UUID `bun:"id,pk,type:uuid"`
	AuthorID   uuid.UUID `bun:"author_id,type:uuid,notnull"`
	Author     *User     `bun:"rel:belongs-to,join:author_id=id"`
	Title      string    `bun:"title,notnull"`
	Content    string    `bun:"content,notnull"`
	DatePosted time.Time `bun:"date_posted,nullzero,notnull,default:current_timestamp"`
}
