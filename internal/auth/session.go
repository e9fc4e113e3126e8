package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Session is a login bound to one user. Token is the raw cookie value and is
// only populated by Create; Redis keeps nothing but its hash.
type Session struct {
	Token     string
	UserID    uuid.UUID
	Remember  bool
	CreatedAt time.Time
	ExpiresAt time.Time
}

// SessionStore handles session persistence in Redis
type SessionStore struct {
	client      *redis.Client
	ttl         time.Duration
	rememberTTL time.Duration
	now         func() time.Time
}

// NewSessionStore builds a store. ttl applies to ordinary logins, rememberTTL
// to logins with "remember me" set.
func NewSessionStore(client *redis.Client, ttl, rememberTTL time.Duration) *SessionStore {
	return &SessionStore{
		client:      client,
		ttl:         ttl,
		rememberTTL: rememberTTL,
		now:         time.Now,
	}
}

// getSessionKey generates the Redis key for a session
func getSessionKey(tokenHash string) string {
	return fmt.Sprintf("session:%s", tokenHash)
}

// getUserSessionsKey generates the Redis key for user's session set
func getUserSessionsKey(userID uuid.UUID) string {
	return fmt.Sprintf("user_sessions:%s", userID.String())
}

// Create starts a session for the user
func (s *SessionStore) Create(ctx context.Context, userID uuid.UUID, remember bool) (*Session, error) {
	token, err := generateRandomToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session token: %w", err)
	}

	ttl := s.ttl
	if remember {
		ttl = s.rememberTTL
	}
	now := s.now()
	sess := &Session{
		Token:     token,
		UserID:    userID,
		Remember:  remember,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}

	tokenHash := hashToken(token)
	sessionKey := getSessionKey(tokenHash)
	userSessionsKey := getUserSessionsKey(userID)

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, sessionKey, map[string]interface{}{
		"user_id":    userID.String(),
		"remember":   strconv.FormatBool(remember),
		"created_at": now.Unix(),
		"expires_at": sess.ExpiresAt.Unix(),
	})
	pipe.Expire(ctx, sessionKey, ttl)
	pipe.SAdd(ctx, userSessionsKey, tokenHash)
	// the index outlives any single session it lists
	pipe.Expire(ctx, userSessionsKey, s.rememberTTL)

	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to store session: %w", err)
	}

	return sess, nil
}

// Resolve looks up a live session by its raw token
func (s *SessionStore) Resolve(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, ErrSessionNotFound
	}

	data, err := s.client.HGetAll(ctx, getSessionKey(hashToken(token))).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrSessionNotFound
	}

	userID, err := uuid.Parse(data["user_id"])
	if err != nil {
		return nil, ErrSessionNotFound
	}

	createdAt, _ := strconv.ParseInt(data["created_at"], 10, 64)
	expiresAt, _ := strconv.ParseInt(data["expires_at"], 10, 64)
	remember, _ := strconv.ParseBool(data["remember"])

	sess := &Session{
		UserID:    userID,
		Remember:  remember,
		CreatedAt: time.Unix(createdAt, 0),
		ExpiresAt: time.Unix(expiresAt, 0),
	}
	if !s.now().Before(sess.ExpiresAt) {
		return nil, ErrSessionNotFound
	}

	return sess, nil
}

// Destroy ends a session. Destroying a missing session is not an error.
func (s *SessionStore) Destroy(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}

	tokenHash := hashToken(token)
	sessionKey := getSessionKey(tokenHash)

	userIDStr, err := s.client.HGet(ctx, sessionKey, "user_id").Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read session: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, sessionKey)
	if userID, err := uuid.Parse(userIDStr); err == nil {
		pipe.SRem(ctx, getUserSessionsKey(userID), tokenHash)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	return nil
}

// DestroyAll ends every session of the user
func (s *SessionStore) DestroyAll(ctx context.Context, userID uuid.UUID) error {
	userSessionsKey := getUserSessionsKey(userID)

	tokenHashes, err := s.client.SMembers(ctx, userSessionsKey).Result()
	if err != nil {
		return fmt.Errorf("failed to get user sessions: %w", err)
	}

	keys := make([]string, 0, len(tokenHashes)+1)
	for _, h := range tokenHashes {
		keys = append(keys, getSessionKey(h))
	}
	keys = append(keys, userSessionsKey)

	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete user sessions: %w", err)
	}

	return nil
}

// hashToken returns the hex SHA-256 of a raw token
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// generateRandomToken creates a cryptographically secure random token
func generateRandomToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
