// Package identity verifies the signed access tokens issued by the campus
// auth service. Tokens are HS256 JWTs carrying the verified student profile;
// both the WebSocket upgrade and the moderation API trust them for identity.
package identity

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalidToken is returned for tokens that fail signature or claim checks.
var ErrInvalidToken = errors.New("identity: invalid token")

// Identity is the verified student profile extracted from an access token.
type Identity struct {
	UserID      uuid.UUID
	DisplayName string
	Year        string
	Gender      string
	IsAdmin     bool
}

// Verifier validates access tokens against the shared signing secret.
type Verifier struct {
	secret []byte
}

// NewVerifier creates a token verifier with the given HS256 secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify parses and validates a token string, returning the identity it
// carries. It returns ErrInvalidToken for any signature, expiry, or claim
// failure.
func (v *Verifier) Verify(tokenString string) (*Identity, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	sub, ok := claims["sub"].(string)
	if !ok {
		return nil, fmt.Errorf("%w: missing sub claim", ErrInvalidToken)
	}
	userID, err := uuid.Parse(sub)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed sub claim", ErrInvalidToken)
	}

	id := &Identity{UserID: userID}
	if name, ok := claims["name"].(string); ok {
		id.DisplayName = name
	}
	if year, ok := claims["year"].(string); ok {
		id.Year = year
	}
	if gender, ok := claims["gender"].(string); ok {
		id.Gender = gender
	}
	if admin, ok := claims["admin"].(bool); ok {
		id.IsAdmin = admin
	}
	return id, nil
}

// Sign issues a token for the given identity. Used by tests and local
// tooling; production tokens come from the auth service.
func (v *Verifier) Sign(id *Identity, expiry int64) (string, error) {
	claims := jwt.MapClaims{
		"sub":    id.UserID.String(),
		"name":   id.DisplayName,
		"year":   id.Year,
		"gender": id.Gender,
		"admin":  id.IsAdmin,
		"exp":    expiry,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}
