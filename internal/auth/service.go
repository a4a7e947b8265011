package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"devlink-realtime/internal/config"
	"devlink-realtime/internal/database"

	"github.com/golang-jwt/jwt/v5"
)

// Claims carried by a session token. UserID wins over the registered
// subject when both are set.
type Claims struct {
	UserID string `json:"user_id,omitempty"`
	jwt.RegisteredClaims
}

func (c *Claims) Identity() string {
	if c.UserID != "" {
		return c.UserID
	}
	return c.Subject
}

// Identity is the verified user attached to an admitted connection.
type Identity struct {
	UserID string
	Source TokenSource
}

type Service struct {
	store         database.UserStore
	secret        []byte
	expiresIn     time.Duration
	lookupTimeout time.Duration
}

func NewService(store database.UserStore, cfg *config.Config) *Service {
	lookupTimeout := cfg.Auth.LookupTimeout
	if lookupTimeout <= 0 {
		lookupTimeout = 5 * time.Second
	}
	return &Service{
		store:         store,
		secret:        cfg.JWT.Secret,
		expiresIn:     cfg.JWT.ExpiresIn,
		lookupTimeout: lookupTimeout,
	}
}

// Authenticate runs the admission gate for one connection attempt. On any
// failure it returns an *AdmissionError and a zero Identity.
func (s *Service) Authenticate(ctx context.Context, h Handshake) (Identity, error) {
	tokenString, source := h.Token()
	if tokenString == "" {
		return Identity{}, reject(ErrNoToken, nil)
	}

	claims, err := s.ValidateToken(tokenString)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, reject(ErrTokenExpired, err)
		}
		return Identity{}, reject(ErrInvalidToken, err)
	}

	userID := claims.Identity()
	if userID == "" {
		return Identity{}, reject(ErrInvalidIdentity, nil)
	}

	lookupCtx, cancel := context.WithTimeout(ctx, s.lookupTimeout)
	defer cancel()

	exists, err := s.store.UserExists(lookupCtx, userID)
	switch {
	case errors.Is(err, database.ErrInvalidUserID):
		return Identity{}, reject(ErrInvalidIdentity, err)
	case err != nil:
		return Identity{}, reject(ErrLookupFailed, err)
	case !exists:
		return Identity{}, reject(ErrUnknownUser, nil)
	}

	return Identity{UserID: userID, Source: source}, nil
}

func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}

	return nil, fmt.Errorf("invalid token")
}

// IssueToken signs a token for userID with the configured lifetime.
func (s *Service) IssueToken(userID string) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("user id is required")
	}

	now := time.Now()
	claims := &Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiresIn)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}
