package auth

import (
	"fmt"
	"time"

	"aidanwoods.dev/go-paseto"
	"github.com/google/uuid"
)

// resetAudience binds a token to the password reset purpose so that no other
// token minted with the same key is accepted here
const resetAudience = "password-reset"

// PasetoCodec handles reset token creation and validation.
// Uses v4.local (symmetric encryption with XChaCha20-Poly1305)
type PasetoCodec struct {
	symmetricKey paseto.V4SymmetricKey
	ttl          time.Duration
	now          func() time.Time
}

func NewPasetoCodec(symmetricKey []byte, ttl time.Duration) (*PasetoCodec, error) {
	if len(symmetricKey) != 32 {
		return nil, fmt.Errorf("symmetric key must be exactly 32 bytes, got %d", len(symmetricKey))
	}

	key, err := paseto.V4SymmetricKeyFromBytes(symmetricKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create symmetric key: %w", err)
	}

	return &PasetoCodec{
		symmetricKey: key,
		ttl:          ttl,
		now:          time.Now,
	}, nil
}

// Issue generates a v4.local token naming the user, valid for the codec TTL
func (c *PasetoCodec) Issue(userID uuid.UUID) (string, error) {
	now := c.now()

	token := paseto.NewToken()
	token.SetIssuedAt(now)
	token.SetNotBefore(now)
	token.SetExpiration(now.Add(c.ttl))
	token.SetAudience(resetAudience)
	token.SetSubject(userID.String())

	return token.V4Encrypt(c.symmetricKey, nil), nil
}

// Parse validates a v4.local token and returns the user it names
func (c *PasetoCodec) Parse(tokenStr string) (uuid.UUID, error) {
	parser := paseto.NewParserWithoutExpiryCheck()
	parser.AddRule(paseto.ForAudience(resetAudience))
	parser.AddRule(paseto.ValidAt(c.now()))

	token, err := parser.ParseV4Local(c.symmetricKey, tokenStr, nil)
	if err != nil {
		return uuid.Nil, ErrInvalidResetToken
	}

	subject, err := token.GetSubject()
	if err != nil {
		return uuid.Nil, ErrInvalidResetToken
	}

	userID, err := uuid.Parse(subject)
	if err != nil {
		return uuid.Nil, ErrInvalidResetToken
	}

	return userID, nil
}
