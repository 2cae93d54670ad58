// Package auth authenticates the single configured administrator of the
// HTTP API and issues HS256 session tokens.
package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/ned1313/pdf-mirror/internal/config"
	"golang.org/x/crypto/bcrypt"
)

const issuer = "pdf-mirror"

var (
	// ErrInvalidCredentials is returned for an unknown user or wrong password
	ErrInvalidCredentials = errors.New("invalid username or password")

	// ErrAdminDisabled is returned when no admin password hash is configured
	ErrAdminDisabled = errors.New("admin login is disabled: no password hash configured")

	// ErrTokenRevoked is returned for a token whose session was logged out
	ErrTokenRevoked = errors.New("token has been revoked")
)

// Service handles authentication operations
type Service struct {
	jwtSecret     []byte
	jwtExpiration time.Duration
	bcryptCost    int

	adminUsername     string
	adminPasswordHash string

	mu      sync.Mutex
	revoked map[string]time.Time // jti -> token expiry
}

// Claims represents JWT claims for the admin user
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// NewService creates a new authentication service without admin credentials
func NewService(jwtSecret string, jwtExpirationHours int, bcryptCost int) *Service {
	return &Service{
		jwtSecret:     []byte(jwtSecret),
		jwtExpiration: time.Duration(jwtExpirationHours) * time.Hour,
		bcryptCost:    bcryptCost,
		revoked:       make(map[string]time.Time),
	}
}

// NewFromConfig creates a service for the configured admin. An empty JWT
// secret is replaced by a random one, so tokens do not survive a restart.
func NewFromConfig(cfg config.AuthConfig) (*Service, error) {
	secret := cfg.JWTSecret
	if secret == "" {
		generated, err := GenerateRandomPassword(48)
		if err != nil {
			return nil, fmt.Errorf("failed to generate JWT secret: %w", err)
		}
		secret = generated
	}

	s := NewService(secret, cfg.JWTExpirationHours, cfg.BCryptCost)
	s.adminUsername = cfg.AdminUsername
	s.adminPasswordHash = cfg.AdminPasswordHash
	return s, nil
}

// HashPassword hashes a password using bcrypt
func (s *Service) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// VerifyPassword checks if a password matches the hash
func (s *Service) VerifyPassword(hash, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}

// Authenticate checks username and password against the configured admin
func (s *Service) Authenticate(username, password string) error {
	if s.adminPasswordHash == "" {
		return ErrAdminDisabled
	}

	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(s.adminUsername)) == 1
	// Always run bcrypt so a wrong username costs the same as a wrong password
	passErr := s.VerifyPassword(s.adminPasswordHash, password)
	if !userOK || passErr != nil {
		return ErrInvalidCredentials
	}
	return nil
}

// GenerateToken creates a new JWT token for a user.
// It returns the signed token, its ID and its expiry.
func (s *Service) GenerateToken(username string) (string, string, time.Time, error) {
	jti := uuid.NewString()
	now := time.Now()
	expiresAt := now.Add(s.jwtExpiration)

	claims := &Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   username,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, jti, expiresAt, nil
}

// ValidateToken validates a JWT token and returns the claims
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		// Validate signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	}, jwt.WithIssuer(issuer))

	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	if s.isRevoked(claims.ID) {
		return nil, ErrTokenRevoked
	}

	return claims, nil
}

// Revoke invalidates the token with the given ID until it expires
func (s *Service) Revoke(jti string, expiresAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for id, exp := range s.revoked {
		if now.After(exp) {
			delete(s.revoked, id)
		}
	}
	s.revoked[jti] = expiresAt
}

func (s *Service) isRevoked(jti string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.revoked[jti]
	return ok
}

// GenerateRandomPassword generates a secure random password
func GenerateRandomPassword(length int) (string, error) {
	if length < 8 {
		length = 8
	}

	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate random password: %w", err)
	}

	// Convert to base64 for readability (will be longer than length)
	return base64.URLEncoding.EncodeToString(bytes)[:length], nil
}
