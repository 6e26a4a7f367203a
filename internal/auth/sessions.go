// ABOUTME: Agent session tokens: HS256 JWTs minted at login, verified per request
// ABOUTME: The sub claim carries the agent id; expiry drives the presence sweep

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token errors
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrMissingClaim = errors.New("missing required claim")
)

// DefaultSessionTTL applies when Issue is called with a zero ttl.
const DefaultSessionTTL = 24 * time.Hour

// Verifier checks a session token and names the agent holding it.
type Verifier interface {
	Verify(token string) (agentID string, err error)
}

// Sessions mints and verifies agent session tokens. Tokens are HS256 JWTs
// carrying the agent id; the expiry handed out alongside each token is what
// the presence sweep enforces.
type Sessions struct {
	secret []byte
	clock  func() time.Time
}

// NewSessions creates a session authority from the signing secret.
func NewSessions(secret []byte) (*Sessions, error) {
	if len(secret) == 0 {
		return nil, errors.New("session secret must not be empty")
	}
	s := &Sessions{secret: make([]byte, len(secret)), clock: time.Now}
	copy(s.secret, secret)
	return s, nil
}

// Issue mints a session token for the agent. A zero ttl falls back to
// DefaultSessionTTL; a negative ttl mints an already-expired token, which
// tests rely on. The jti claim makes every token unique so presence can
// validate by plain equality.
func (s *Sessions) Issue(agentID string, ttl time.Duration) (string, time.Time, error) {
	if agentID == "" {
		return "", time.Time{}, fmt.Errorf("%w: sub", ErrMissingClaim)
	}
	if ttl == 0 {
		ttl = DefaultSessionTTL
	}

	now := s.clock()
	expiresAt := now.Add(ttl)
	claims := jwt.MapClaims{
		"sub": agentID,
		"iat": now.Unix(),
		"exp": expiresAt.Unix(),
		"jti": uuid.New().String(),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign session token: %w", err)
	}
	return token, expiresAt, nil
}

// Verify validates the token and extracts the agent id from the "sub" claim.
func (s *Sessions) Verify(tokenString string) (agentID string, err error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		// Only HS256-family tokens are ours.
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpiredToken
		}
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if !token.Valid {
		return "", ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidToken
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", fmt.Errorf("%w: sub", ErrMissingClaim)
	}

	return sub, nil
}
