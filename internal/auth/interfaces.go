package auth

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/foothill/blog/internal/user"
)

// ResetTokenCodec issues and validates self-contained password reset tokens.
// Implementations include PasetoCodec (PASETO v4.local) and JWTCodec (HS256).
type ResetTokenCodec interface {
	Issue(userID uuid.UUID) (string, error)
	// Parse returns ErrInvalidResetToken for malformed, forged or expired tokens
	Parse(token string) (uuid.UUID, error)
}

// UserStore is the credential store the account workflow runs against
type UserStore interface {
	Create(ctx context.Context, username, email, passwordHash string) (*user.User, error)
	GetByEmail(ctx context.Context, email string) (*user.User, error)
	GetByUsername(ctx context.Context, username string) (*user.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*user.User, error)
	Update(ctx context.Context, id uuid.UUID, changes user.Changes) (*user.User, error)
	UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error
}

// PasswordHasher is a one-way hash with verification
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(encodedHash, password string) bool
}

// SessionManager creates, resolves and destroys login sessions
type SessionManager interface {
	Create(ctx context.Context, userID uuid.UUID, remember bool) (*Session, error)
	Resolve(ctx context.Context, token string) (*Session, error)
	Destroy(ctx context.Context, token string) error
	DestroyAll(ctx context.Context, userID uuid.UUID) error
}

// Mailer delivers the password reset message
type Mailer interface {
	SendPasswordResetEmail(ctx context.Context, toEmail, resetLink string, ttl time.Duration) error
}

// PictureStore persists an uploaded profile picture and returns its reference
type PictureStore interface {
	SavePicture(ctx context.Context, filename string, data []byte) (string, error)
	DeletePicture(ctx context.Context, ref string) error
}

// ResetThrottle suppresses repeated reset mails to the same address
type ResetThrottle interface {
	// AllowResetEmail reports whether a reset mail may be sent to email now,
	// and starts the cooldown when it may.
	AllowResetEmail(ctx context.Context, email string) (bool, error)
}

// EventRecorder counts account workflow outcomes
type EventRecorder interface {
	RecordAuthEvent(event string)
}
