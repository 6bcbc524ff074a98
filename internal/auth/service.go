package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/inamate/whiteboard/internal/typeid"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrDisabled     = errors.New("authentication is not configured")
)

const defaultTokenTTL = 24 * time.Hour

// Service issues and validates HS256 tokens. With an empty secret it is
// disabled: the middleware lets every request through as a guest.
type Service struct {
	jwtSecret []byte
	ttl       time.Duration
	now       func() time.Time
}

func NewService(jwtSecret string) *Service {
	return &Service{
		jwtSecret: []byte(jwtSecret),
		ttl:       defaultTokenTTL,
		now:       time.Now,
	}
}

func (s *Service) Enabled() bool { return len(s.jwtSecret) > 0 }

type User struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
}

type AuthResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	User      User      `json:"user"`
}

// Guest issues a token for a new guest user.
func (s *Service) Guest(displayName string) (*AuthResult, error) {
	if displayName == "" {
		displayName = "Guest"
	}
	return s.IssueToken(User{ID: typeid.NewUserID(), DisplayName: displayName})
}

// IssueToken signs a token for user.
func (s *Service) IssueToken(user User) (*AuthResult, error) {
	if !s.Enabled() {
		return nil, ErrDisabled
	}
	now := s.now()
	exp := now.Add(s.ttl)
	claims := jwt.MapClaims{
		"sub":  user.ID,
		"name": user.DisplayName,
		"iat":  now.Unix(),
		"exp":  exp.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}

	return &AuthResult{Token: signed, ExpiresAt: time.Unix(exp.Unix(), 0).UTC(), User: user}, nil
}

// ValidateToken returns the user a token was issued for.
func (s *Service) ValidateToken(tokenString string) (User, error) {
	if !s.Enabled() {
		return User{}, ErrDisabled
	}
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return User{}, fmt.Errorf("parse token: %w: %w", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return User{}, ErrInvalidToken
	}

	userID, ok := claims["sub"].(string)
	if !ok || userID == "" {
		return User{}, fmt.Errorf("missing subject: %w", ErrInvalidToken)
	}
	name, _ := claims["name"].(string)

	return User{ID: userID, DisplayName: name}, nil
}
