package auth

import "github.com/google/uuid"

// Identity is who is making a request. The zero value is an anonymous visitor.
type Identity struct {
	UserID uuid.UUID
	// SessionToken is the raw cookie value of the session that authenticated the request
	SessionToken string
}

// Anonymous is the identity of a request without a live session
var Anonymous = Identity{}

func (i Identity) Authenticated() bool {
	return i.UserID != uuid.Nil
}
