package tasks

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/makkenzo/device-license-service/internal/domain/license"
	"github.com/makkenzo/device-license-service/internal/storage/memstorage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLicenseGraceScanHandler_Scan(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	repo := memstorage.NewLicenseRepository(func() time.Time { return now })

	add := func(key string, expiresAt time.Time, status license.LicenseStatus) {
		_, err := repo.Create(context.Background(), &license.License{
			LicenseKey:      key,
			CompanyID:       uuid.New(),
			Type:            license.TypeOffline,
			Status:          status,
			MaxDevices:      1,
			ExpiresAt:       expiresAt,
			GracePeriodDays: 7,
		})
		require.NoError(t, err)
	}
	add("VALI-DVAL-IDVA-LID1", now.AddDate(0, 0, 1), license.StatusActive)
	add("GRAC-EGRA-CEGR-ACE1", now.AddDate(0, 0, -3), license.StatusActive)
	add("EXPI-REDE-XPIR-ED01", now.AddDate(0, 0, -8), license.StatusActive)
	add("REVO-KEDR-EVOK-ED01", now.AddDate(0, 0, -3), license.StatusRevoked)

	h := NewLicenseGraceScanHandler(repo, func() time.Time { return now }, zap.NewNop())
	result, err := h.Scan(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result[license.GraceValid])
	assert.Equal(t, 1, result[license.GraceInGrace])
	assert.Equal(t, 1, result[license.GraceExpired])
}

func TestLicenseGraceScanHandler_ProcessTask(t *testing.T) {
	repo := memstorage.NewLicenseRepository(nil)
	h := NewLicenseGraceScanHandler(repo, nil, zap.NewNop())

	task, err := NewLicenseGraceScanTask()
	require.NoError(t, err)
	assert.NoError(t, h.ProcessTask(context.Background(), task))

	err = h.ProcessTask(context.Background(), asynq.NewTask("other:task", nil))
	assert.Error(t, err)
}
