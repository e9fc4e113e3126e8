package auth

import "errors"

var (
	// ErrInvalidCredentials is the only login failure a visitor ever sees
	ErrInvalidCredentials   = errors.New("invalid email or password")
	ErrAuthRequired         = errors.New("authentication required")
	ErrAlreadyAuthenticated = errors.New("already authenticated")
	ErrInvalidResetToken    = errors.New("invalid or expired reset token")
	ErrSessionNotFound      = errors.New("session not found")
)
