package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// UserClaims identify an API caller. Subjects are Telegram user IDs.
type UserClaims struct {
	UserID  int64  `json:"user_id"`
	Role    string `json:"role"` // "admin" or "viewer"
}

// Claims embeds the registered JWT claims.
type Claims struct {
	UserClaims
	jwt.RegisteredClaims
}

// JWTManager issues and validates HS256 access tokens for the HTTP API.
type JWTManager struct {
	secret        []byte
	tokenDuration time.Duration
}

func NewJWTManager(secret string, tokenDuration time.Duration) *JWTManager {
	return &JWTManager{
		secret:        []byte(secret),
		tokenDuration: tokenDuration,
	}
}

// GenerateToken issues a signed access token for the claims.
func (m *JWTManager) GenerateToken(claims UserClaims) (string, error) {
	now := time.Now()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserClaims: claims,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   fmt.Sprintf("%d", claims.UserID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.tokenDuration)),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    "alpha-bot",
			Audience:  []string{"alpha-bot-api"},
		},
	})

	signedToken, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signedToken, nil
}

// ValidateToken parses and verifies a token, returning its claims.
func (m *JWTManager) ValidateToken(tokenString string) (*UserClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return &claims.UserClaims, nil
}

// TokenDuration returns the configured token lifetime in seconds.
func (m *JWTManager) TokenDuration() int64 {
	return int64(m.tokenDuration.Seconds())
}
