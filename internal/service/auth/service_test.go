package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/jwalitptl/slot-booking/pkg/auth"
	apperrors "github.com/jwalitptl/slot-booking/pkg/errors"
)

const (
	adminEmail    = "therapist@example.com"
	adminPassword = "s3cret-passw0rd"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	hasher := auth.NewBcryptHasher(bcrypt.MinCost)
	hash, err := hasher.Hash(adminPassword)
	require.NoError(t, err)

	jwtSvc, err := auth.NewJWTService(auth.Config{Secret: "unit-test-secret-xyz", TTL: time.Hour}, nil)
	require.NoError(t, err)

	return NewService(Config{AdminEmail: adminEmail, AdminPasswordHash: hash}, jwtSvc, hasher, nil)
}

func TestLogin(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	resp, err := svc.Login(ctx, " Therapist@Example.com ", adminPassword)
	require.NoError(t, err)
	assert.Equal(t, "Bearer", resp.TokenType)
	assert.True(t, resp.ExpiresAt.After(time.Now()))

	claims, err := svc.ValidateToken(ctx, "Bearer "+resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, adminEmail, claims.Email)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Login(ctx, adminEmail, "wrong-password")
	assert.True(t, apperrors.IsKind(err, apperrors.KindUnauthorized))

	_, err = svc.Login(ctx, "someone@example.com", adminPassword)
	assert.True(t, apperrors.IsKind(err, apperrors.KindUnauthorized))
}

func TestLoginDisabledWithoutHash(t *testing.T) {
	jwtSvc, err := auth.NewJWTService(auth.Config{Secret: "unit-test-secret-xyz"}, nil)
	require.NoError(t, err)
	svc := NewService(Config{AdminEmail: adminEmail}, jwtSvc, nil, nil)

	_, err = svc.Login(context.Background(), adminEmail, adminPassword)
	assert.True(t, apperrors.IsKind(err, apperrors.KindUnauthorized))
}

func TestValidateTokenRejectsMissing(t *testing.T) {
	svc := newTestService(t)

	for _, header := range []string{"", "Bearer ", "Bearer garbage"} {
		_, err := svc.ValidateToken(context.Background(), header)
		assert.True(t, apperrors.IsKind(err, apperrors.KindUnauthorized), header)
	}
}

func TestLogoutRevokesToken(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	resp, err := svc.IssueToken(ctx)
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, "Bearer "+resp.AccessToken))

	_, err = svc.ValidateToken(ctx, resp.AccessToken)
	assert.True(t, apperrors.IsKind(err, apperrors.KindUnauthorized))

	err = svc.Logout(ctx, resp.AccessToken)
	assert.True(t, apperrors.IsKind(err, apperrors.KindUnauthorized))
}
