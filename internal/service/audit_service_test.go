package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/lan-attendance-api/internal/models"
	appErrors "github.com/noah-isme/lan-attendance-api/pkg/errors"
)

type stubAuditRepo struct {
	logs      []models.AuditLog
	err       error
	lastLimit int
}

func (s *stubAuditRepo) ListRecent(_ context.Context, limit int) ([]models.AuditLog, error) {
	s.lastLimit = limit
	return s.logs, s.err
}

func TestAuditServiceRecent(t *testing.T) {
	repo := &stubAuditRepo{}
	svc := NewAuditService(repo, nil)

	logs, err := svc.Recent(context.Background(), 0)
	require.NoError(t, err)
	assert.NotNil(t, logs)
	assert.Empty(t, logs)
	assert.Equal(t, 100, repo.lastLimit)

	_, err = svc.Recent(context.Background(), 10000)
	require.NoError(t, err)
	assert.Equal(t, 500, repo.lastLimit)

	repo.err = errors.New("db down")
	_, err = svc.Recent(context.Background(), 5)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInternal.Code, appErrors.FromError(err).Code)
}
