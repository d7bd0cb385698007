package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/makkenzo/device-license-service/internal/config"
	"github.com/makkenzo/device-license-service/internal/ierr"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const adminRole = "admin"

type AdminClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// AuthService authenticates the single configured administrator and issues
// HS256 access tokens for the admin API.
type AuthService struct {
	jwtCfg config.JWTConfig
	admin  config.AdminConfig
	now    Clock
	logger *zap.Logger
}

func NewAuthService(jwtCfg config.JWTConfig, admin config.AdminConfig, clock Clock, logger *zap.Logger) (*AuthService, error) {
	log := logger.Named("AuthService")
	if jwtCfg.Secret == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}
	if admin.Username == "" || admin.PasswordHash == "" {
		return nil, fmt.Errorf("admin username and password hash are required")
	}
	if jwtCfg.TTL <= 0 {
		jwtCfg.TTL = 12 * time.Hour
	}
	if clock == nil {
		clock = systemClock
	}
	return &AuthService{
		jwtCfg: jwtCfg,
		admin:  admin,
		now:    clock,
		logger: log,
	}, nil
}

func (s *AuthService) Login(ctx context.Context, username, password string) (string, time.Duration, error) {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(s.admin.Username)) == 1
	passErr := bcrypt.CompareHashAndPassword([]byte(s.admin.PasswordHash), []byte(password))
	if !userOK || passErr != nil {
		s.logger.Info("Rejected admin login", zap.String("username", username))
		return "", 0, ierr.ErrInvalidCredentials
	}

	now := s.now()
	claims := AdminClaims{
		Role: adminRole,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   s.admin.Username,
			Issuer:    s.jwtCfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.jwtCfg.TTL)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.jwtCfg.Secret))
	if err != nil {
		s.logger.Error("Failed to sign access token", zap.Error(err))
		return "", 0, fmt.Errorf("%w: signing token: %v", ierr.ErrInternalServer, err)
	}

	s.logger.Info("Admin logged in", zap.String("username", username))
	return token, s.jwtCfg.TTL, nil
}

func (s *AuthService) ValidateToken(ctx context.Context, rawToken string) (*AdminClaims, error) {
	var claims AdminClaims
	token, err := jwt.ParseWithClaims(rawToken, &claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(s.jwtCfg.Secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.jwtCfg.Issuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenMalformed) {
			return nil, fmt.Errorf("%w: %v", ierr.ErrTokenParsingFailed, err)
		}
		s.logger.Debug("Access token rejected", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ierr.ErrInvalidToken, err)
	}
	if !token.Valid || claims.Role != adminRole {
		return nil, ierr.ErrTokenInvalidClaims
	}
	return &claims, nil
}
