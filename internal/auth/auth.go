// Package auth issues and checks the bearer tokens of the admin API.
// Tokens are opaque to svcclient, which only forwards them.
package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/RassulYunussov/svcclient/internal/config"
	"github.com/RassulYunussov/svcclient/internal/response"
	"github.com/golang-jwt/jwt/v5"
)

const RoleAdmin = "admin"

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
)

type Claims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

type Service struct {
	signingKey    []byte
	tokenLifetime time.Duration
	adminEmail    string
	adminPassword string
	timeFunc      func() time.Time
}

func NewService(cfg config.AuthConfig) *Service {
	return &Service{
		signingKey:    []byte(cfg.JWTSecret),
		tokenLifetime: cfg.TokenLifetime,
		adminEmail:    cfg.AdminEmail,
		adminPassword: cfg.AdminPassword,
		timeFunc:      time.Now,
	}
}

// Login checks the admin credentials and returns a signed token.
func (s *Service) Login(email, password string) (string, error) {
	emailOK := subtle.ConstantTimeCompare([]byte(email), []byte(s.adminEmail)) == 1
	passwordOK := subtle.ConstantTimeCompare([]byte(password), []byte(s.adminPassword)) == 1
	if !emailOK || !passwordOK {
		return "", ErrInvalidCredentials
	}
	now := s.timeFunc()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Email: email,
		Role:  RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenLifetime)),
		},
	})
	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

func (s *Service) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return s.signingKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.timeFunc))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims, nil
}

// RequireAdmin rejects requests without a valid bearer token carrying the admin role.
// The Authorization header is left in place so handlers can forward it.
func (s *Service) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		tokenString, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || tokenString == "" {
			response.Error(w, http.StatusUnauthorized, "Access token is required", "UNAUTHORIZED", nil)
			return
		}
		claims, err := s.Verify(tokenString)
		if err != nil {
			slog.DebugContext(r.Context(), "token rejected", slog.Any("error", err))
			response.Error(w, http.StatusUnauthorized, "Invalid or expired token", "UNAUTHORIZED", nil)
			return
		}
		if claims.Role != RoleAdmin {
			response.Error(w, http.StatusForbidden, "Admin access required", "FORBIDDEN", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}
