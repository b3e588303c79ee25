package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/flyingdarts/flyingdarts-turbo-sub000/internal/models"
)

var (
	ErrMissingToken = errors.New("missing token")
	ErrInvalidToken = errors.New("invalid token")
)

// UserLookup finds the user registered for an external identity
type UserLookup interface {
	ReadUserByIdentity(ctx context.Context, authProviderUserID string) (models.User, error)
}

// Resolver maps the external identity of a caller to its player id
type Resolver struct {
	users UserLookup
}

func NewResolver(users UserLookup) *Resolver {
	return &Resolver{users: users}
}

// ResolvePlayerID returns the player id of externalIdentity. Unknown
// identities fail with the store's not-found error.
func (r *Resolver) ResolvePlayerID(ctx context.Context, externalIdentity string) (string, error) {
	if externalIdentity == "" {
		return "", fmt.Errorf("resolve identity: %w", ErrMissingToken)
	}
	u, err := r.users.ReadUserByIdentity(ctx, externalIdentity)
	if err != nil {
		return "", err
	}
	return u.UserID, nil
}

// BearerToken extracts the token of an "Authorization: Bearer" header value
func BearerToken(header string) (string, error) {
	if header == "" || !strings.HasPrefix(header, "Bearer ") {
		return "", ErrMissingToken
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return "", ErrMissingToken
	}
	return token, nil
}

// ParseToken validates an HS256 token and returns its subject, the external identity
func ParseToken(secret, token string) (string, error) {
	if token == "" {
		return "", ErrMissingToken
	}
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing method %s", t.Method.Alg())
		}
		return []byte(secret), nil
	})
	if err != nil || !parsed.Valid {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidToken
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return "", fmt.Errorf("%w: no subject", ErrInvalidToken)
	}
	return sub, nil
}

// IssueToken signs a token for subject, used by tooling and tests
func IssueToken(secret, subject string, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"sub": subject,
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
