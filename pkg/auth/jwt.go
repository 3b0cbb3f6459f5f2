package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/jwalitptl/slot-booking/internal/model"
)

const DefaultTokenTTL = 12 * time.Hour

var ErrMissingSecret = errors.New("jwt secret is required")

type JWTService interface {
	GenerateAccessToken(email string) (string, *model.TokenClaims, error)
	ValidateToken(token string) (*model.TokenClaims, error)
	// Revoke rejects the token's jti until the token would have expired anyway.
	Revoke(claims *model.TokenClaims)
}

type Config struct {
	Secret string
	Issuer string
	TTL    time.Duration
}

type hmacJWTService struct {
	secret  []byte
	issuer  string
	ttl     time.Duration
	revoked *cache.Cache
	now     func() time.Time
}

// NewJWTService signs HS256 tokens. now may be nil.
func NewJWTService(cfg Config, now func() time.Time) (JWTService, error) {
	if cfg.Secret == "" {
		return nil, ErrMissingSecret
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTokenTTL
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "slot-booking"
	}
	if now == nil {
		now = time.Now
	}
	return &hmacJWTService{
		secret:  []byte(cfg.Secret),
		issuer:  cfg.Issuer,
		ttl:     cfg.TTL,
		revoked: cache.New(cfg.TTL, 10*time.Minute),
		now:     now,
	}, nil
}

func (s *hmacJWTService) GenerateAccessToken(email string) (string, *model.TokenClaims, error) {
	now := s.now()
	claims := &model.TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   model.AdminSubject,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
		Email: email,
		Role:  model.AdminSubject,
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign token: %w", err)
	}
	return token, claims, nil
}

func (s *hmacJWTService) ValidateToken(token string) (*model.TokenClaims, error) {
	claims := &model.TokenClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (interface{}, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithSubject(model.AdminSubject),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	if !parsed.Valid || claims.ID == "" {
		return nil, errors.New("invalid token claims")
	}
	if _, revoked := s.revoked.Get(claims.ID); revoked {
		return nil, model.ErrTokenRevoked
	}
	return claims, nil
}

func (s *hmacJWTService) Revoke(claims *model.TokenClaims) {
	if claims == nil || claims.ID == "" || claims.ExpiresAt == nil {
		return
	}
	remaining := claims.ExpiresAt.Time.Sub(s.now())
	if remaining <= 0 {
		return
	}
	s.revoked.Set(claims.ID, struct{}{}, remaining)
}
