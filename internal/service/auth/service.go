package auth

import (
	"context"
	"crypto/subtle"
	"fmt"
	"strings"

	"github.com/jwalitptl/slot-booking/internal/model"
	"github.com/jwalitptl/slot-booking/pkg/auth"
	apperrors "github.com/jwalitptl/slot-booking/pkg/errors"
	"github.com/jwalitptl/slot-booking/pkg/logger"
)

// Config holds the single admin account.
type Config struct {
	AdminEmail        string
	AdminPasswordHash string
}

type Service struct {
	cfg    Config
	jwtSvc auth.JWTService
	hasher auth.PasswordHasher
	log    *logger.Logger
}

func NewService(cfg Config, jwtSvc auth.JWTService, hasher auth.PasswordHasher, log *logger.Logger) *Service {
	if hasher == nil {
		hasher = auth.NewBcryptHasher(auth.DefaultBcryptCost)
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		cfg:    cfg,
		jwtSvc: jwtSvc,
		hasher: hasher,
		log:    log.With("auth"),
	}
}

func (s *Service) Login(ctx context.Context, email, password string) (*model.TokenResponse, error) {
	if s.cfg.AdminPasswordHash == "" {
		return nil, apperrors.Unauthorized(fmt.Errorf("admin login is disabled"))
	}

	emailOK := subtle.ConstantTimeCompare(
		[]byte(strings.ToLower(strings.TrimSpace(email))),
		[]byte(strings.ToLower(s.cfg.AdminEmail)),
	) == 1
	// Compare the password even on an unknown email so both paths cost the same.
	passwordErr := s.hasher.Compare(s.cfg.AdminPasswordHash, password)
	if !emailOK || passwordErr != nil {
		s.log.Warn("admin login rejected", "email", email)
		return nil, apperrors.Unauthorized(model.ErrInvalidCredentials)
	}

	resp, err := s.IssueToken(ctx)
	if err != nil {
		return nil, err
	}
	s.log.Info("admin logged in", "email", s.cfg.AdminEmail)
	return resp, nil
}

// IssueToken signs an admin token without a password check.
func (s *Service) IssueToken(ctx context.Context) (*model.TokenResponse, error) {
	token, claims, err := s.jwtSvc.GenerateAccessToken(s.cfg.AdminEmail)
	if err != nil {
		return nil, apperrors.Internal(fmt.Errorf("failed to generate token: %w", err))
	}
	return &model.TokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresAt:   claims.ExpiresAt.Time,
	}, nil
}

// ValidateToken accepts a raw token or an Authorization header value.
func (s *Service) ValidateToken(ctx context.Context, token string) (*model.TokenClaims, error) {
	token = bearer(token)
	if token == "" {
		return nil, apperrors.Unauthorized(fmt.Errorf("missing token"))
	}
	claims, err := s.jwtSvc.ValidateToken(token)
	if err != nil {
		return nil, apperrors.Unauthorized(err)
	}
	return claims, nil
}

func (s *Service) Logout(ctx context.Context, token string) error {
	claims, err := s.ValidateToken(ctx, token)
	if err != nil {
		return err
	}
	s.jwtSvc.Revoke(claims)
	s.log.Info("admin logged out", "jti", claims.ID)
	return nil
}

func bearer(header string) string {
	header = strings.TrimSpace(header)
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return header
}
