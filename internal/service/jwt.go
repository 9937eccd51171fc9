package service

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/userprod/account-service/internal/config"
	"github.com/userprod/account-service/internal/models"
)

const (
	minSecretLength = 32
	resetTokenBytes = 20
)

var (
	// ErrInvalidToken covers every token verification failure.
	ErrInvalidToken = errors.New("invalid token")
	// ErrWeakSecret is returned for signing secrets shorter than 32 bytes.
	ErrWeakSecret = errors.New("jwt secret must be at least 32 bytes")
)

// AccessClaims are carried by access tokens.
type AccessClaims struct {
	UserID   int64       `json:"userId"`
	Email    string      `json:"email"`
	Username string      `json:"username"`
	Role     models.Role `json:"role"`
	jwt.RegisteredClaims
}

// RefreshClaims are carried by refresh tokens. RegisteredClaims.ID holds a
// unique token id.
type RefreshClaims struct {
	UserID int64 `json:"userId"`
	jwt.RegisteredClaims
}

// ResetToken is a one-time password reset credential. Only Hash is stored.
type ResetToken struct {
	Plain  string
	Hash   string
	Expiry time.Time
}

// TokenIssuer issues and verifies session and reset tokens.
type TokenIssuer interface {
	IssueAccessToken(identity models.Identity) (string, error)
	IssueRefreshToken(userID int64) (string, error)
	IssueResetToken() (ResetToken, error)
	ParseAccessToken(token string) (*AccessClaims, error)
	ParseRefreshToken(token string) (*RefreshClaims, error)
	AccessExpiry() time.Duration
	RefreshExpiry() time.Duration
}

type tokenIssuer struct {
	accessSecret  []byte
	refreshSecret []byte
	accessExpiry  time.Duration
	refreshExpiry time.Duration
	resetTTL      time.Duration
	now           func() time.Time
}

// NewTokenIssuer creates a TokenIssuer from the JWT configuration.
func NewTokenIssuer(cfg config.JWTConfig) (TokenIssuer, error) {
	if len(cfg.AccessSecret) < minSecretLength || len(cfg.RefreshSecret) < minSecretLength {
		return nil, ErrWeakSecret
	}
	return &tokenIssuer{
		accessSecret:  []byte(cfg.AccessSecret),
		refreshSecret: []byte(cfg.RefreshSecret),
		accessExpiry:  cfg.AccessExpiry,
		refreshExpiry: cfg.RefreshExpiry,
		resetTTL:      cfg.ResetTokenTTL,
		now:           time.Now,
	}, nil
}

func (s *tokenIssuer) AccessExpiry() time.Duration {
	return s.accessExpiry
}

func (s *tokenIssuer) RefreshExpiry() time.Duration {
	return s.refreshExpiry
}

func (s *tokenIssuer) IssueAccessToken(identity models.Identity) (string, error) {
	now := s.now()
	claims := AccessClaims{
		UserID:   identity.ID,
		Email:    identity.Email,
		Username: identity.Username,
		Role:     identity.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   fmt.Sprint(identity.ID),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessExpiry)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.accessSecret)
}

func (s *tokenIssuer) IssueRefreshToken(userID int64) (string, error) {
	now := s.now()
	claims := RefreshClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   fmt.Sprint(userID),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.refreshExpiry)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.refreshSecret)
}

func (s *tokenIssuer) IssueResetToken() (ResetToken, error) {
	buf := make([]byte, resetTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return ResetToken{}, fmt.Errorf("failed to generate reset token: %w", err)
	}
	plain := hex.EncodeToString(buf)
	return ResetToken{
		Plain:  plain,
		Hash:   HashResetToken(plain),
		Expiry: s.now().Add(s.resetTTL),
	}, nil
}

// HashResetToken returns the stored form of a plaintext reset token.
func HashResetToken(plain string) string {
	sum := sha256.Sum256([]byte(plain))
	return hex.EncodeToString(sum[:])
}

func (s *tokenIssuer) ParseAccessToken(tokenString string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := s.parse(tokenString, claims, s.accessSecret); err != nil {
		return nil, err
	}
	return claims, nil
}

func (s *tokenIssuer) ParseRefreshToken(tokenString string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := s.parse(tokenString, claims, s.refreshSecret); err != nil {
		return nil, err
	}
	return claims, nil
}

func (s *tokenIssuer) parse(tokenString string, claims jwt.Claims, secret []byte) error {
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return secret, nil
	},
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !token.Valid {
		return ErrInvalidToken
	}
	return nil
}
