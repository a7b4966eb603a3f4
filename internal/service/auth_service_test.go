package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/lan-attendance-api/internal/models"
	appErrors "github.com/noah-isme/lan-attendance-api/pkg/errors"
)

type mockAuditWriter struct {
	logs []*models.AuditLog
}

func (m *mockAuditWriter) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	m.logs = append(m.logs, log)
	return nil
}

type memoryRevocations struct {
	revoked map[string]time.Time
}

func (m *memoryRevocations) Revoke(ctx context.Context, tokenID string, until time.Time) error {
	if m.revoked == nil {
		m.revoked = make(map[string]time.Time)
	}
	m.revoked[tokenID] = until
	return nil
}

func (m *memoryRevocations) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	_, ok := m.revoked[tokenID]
	return ok, nil
}

func newTestAuthService(t *testing.T) (*AuthService, *mockAuditWriter, *memoryRevocations) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("admin123"), bcrypt.MinCost)
	require.NoError(t, err)
	audit := &mockAuditWriter{}
	revocations := &memoryRevocations{}
	svc, err := NewAuthService(audit, revocations, nil, zap.NewNop(), AuthConfig{
		AccessTokenSecret: "secret",
		AccessTokenExpiry: time.Hour,
		Issuer:            "lan-attendance",
		PasswordHash:      string(hash),
	})
	require.NoError(t, err)
	return svc, audit, revocations
}

func TestLoginIssuesLecturerToken(t *testing.T) {
	svc, audit, _ := newTestAuthService(t)

	resp, err := svc.Login(context.Background(), models.LoginRequest{Password: "admin123", IP: "10.0.0.2"})
	require.NoError(t, err)
	assert.Equal(t, models.RoleLecturer, resp.Role)
	assert.Equal(t, int64(3600), resp.ExpiresIn)

	claims, err := svc.ValidateToken(context.Background(), resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, models.RoleLecturer, claims.Role)
	assert.Equal(t, models.LecturerSubject, claims.Subject)
	assert.NotEmpty(t, claims.ID)

	require.Len(t, audit.logs, 1)
	assert.Equal(t, models.AuditActionLogin, audit.logs[0].Action)
	assert.Equal(t, "10.0.0.2", audit.logs[0].IPAddress)
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	svc, audit, _ := newTestAuthService(t)

	_, err := svc.Login(context.Background(), models.LoginRequest{Password: "nope"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrInvalidCredentials))
	assert.Empty(t, audit.logs)

	_, err = svc.Login(context.Background(), models.LoginRequest{})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestLoginWithPlainPasswordConfig(t *testing.T) {
	svc, err := NewAuthService(nil, nil, nil, nil, AuthConfig{AccessTokenSecret: "secret", Password: "letmein"})
	require.NoError(t, err)

	_, err = svc.Login(context.Background(), models.LoginRequest{Password: "letmein"})
	assert.NoError(t, err)

	_, err = NewAuthService(nil, nil, nil, nil, AuthConfig{AccessTokenSecret: "secret"})
	assert.Error(t, err)
}

func TestLogoutRevokesToken(t *testing.T) {
	svc, _, revocations := newTestAuthService(t)
	resp, err := svc.Login(context.Background(), models.LoginRequest{Password: "admin123"})
	require.NoError(t, err)
	claims, err := svc.ValidateToken(context.Background(), resp.AccessToken)
	require.NoError(t, err)

	require.NoError(t, svc.Logout(context.Background(), claims))
	assert.Contains(t, revocations.revoked, claims.ID)

	_, err = svc.ValidateToken(context.Background(), resp.AccessToken)
	assert.True(t, errors.Is(err, appErrors.ErrUnauthorized))
}

func TestValidateTokenRejectsExpiredAndForeign(t *testing.T) {
	svc, _, _ := newTestAuthService(t)
	resp, err := svc.Login(context.Background(), models.LoginRequest{Password: "admin123"})
	require.NoError(t, err)

	svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = svc.ValidateToken(context.Background(), resp.AccessToken)
	assert.True(t, errors.Is(err, appErrors.ErrUnauthorized))

	foreign := jwt.NewWithClaims(jwt.SigningMethodHS256, &models.JWTClaims{Role: models.RoleLecturer})
	signed, err := foreign.SignedString([]byte("other"))
	require.NoError(t, err)
	_, err = svc.ValidateToken(context.Background(), signed)
	assert.True(t, errors.Is(err, appErrors.ErrUnauthorized))
}
