// Package auth issues session tokens, hashes passwords and wraps the
// Google OAuth login strategy.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.mongodb.org/mongo-driver/v2/bson"
	"golang.org/x/crypto/bcrypt"

	"github.com/PaulBabatuyi/pairchat/internal/normalize"
)

// ErrInvalidToken is returned for tokens that fail signature or claim checks.
var ErrInvalidToken = errors.New("invalid token")

// JWTManager signs and validates the JWT session tokens used by the API.
// It holds a set of keys addressed by kid so secrets can be rotated without
// invalidating sessions issued under a previous key.
type JWTManager struct {
	keys      map[string][]byte
	activeKID string
	duration  time.Duration
}

// Claims is the custom JWT payload (user id + email).
type Claims struct {
	UserID string `json:"user_id"` // MongoDB ObjectID as hex
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// ObjectID parses the UserID claim.
func (c *Claims) ObjectID() (bson.ObjectID, error) {
	return bson.ObjectIDFromHex(c.UserID)
}

// NewJWTManager returns a manager signing with a single secret.
func NewJWTManager(secretKey string, duration time.Duration) *JWTManager {
	return NewJWTManagerFromKeys(map[string]string{"": secretKey}, "", duration)
}

// NewJWTManagerFromKeys returns a manager that signs with keys[activeKID] and
// verifies with whichever key the token's kid header names.
func NewJWTManagerFromKeys(keys map[string]string, activeKID string, duration time.Duration) *JWTManager {
	m := &JWTManager{
		keys:      make(map[string][]byte, len(keys)),
		activeKID: activeKID,
		duration:  duration,
	}
	for kid, secret := range keys {
		m.keys[kid] = []byte(secret)
	}
	return m
}

// Duration is the validity period of issued tokens.
func (m *JWTManager) Duration() time.Duration { return m.duration }

// GenerateToken issues a signed JWT token for a user.
func (m *JWTManager) GenerateToken(userID bson.ObjectID, email string) (string, time.Time, error) {
	key, ok := m.keys[m.activeKID]
	if !ok {
		return "", time.Time{}, fmt.Errorf("signing key %q not configured", m.activeKID)
	}

	now := time.Now()
	expiresAt := now.Add(m.duration)

	claims := &Claims{
		UserID: userID.Hex(),
		Email:  normalize.Email(email),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.Hex(),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	if m.activeKID != "" {
		token.Header["kid"] = m.activeKID
	}

	tokenString, err := token.SignedString(key)
	if err != nil {
		return "", time.Time{}, err
	}

	return tokenString, expiresAt, nil
}

// VerifyToken parses and validates a token and returns its claims.
func (m *JWTManager) VerifyToken(tokenString string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		// Only HMAC; rejects alg=none and asymmetric confusion.
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		kid, _ := token.Header["kid"].(string)
		key, ok := m.keys[kid]
		if !ok {
			return nil, fmt.Errorf("unknown key id %q", kid)
		}
		return key, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if !token.Valid || claims.UserID == "" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// HashPassword returns a bcrypt hash for the provided plaintext.
func HashPassword(password string) (string, error) {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashedPassword), nil
}

// CheckPassword compares a plaintext password against a bcrypt hash.
// An empty hash (OAuth-only account) never matches.
func CheckPassword(hash, password string) error {
	if hash == "" {
		return bcrypt.ErrMismatchedHashAndPassword
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}
