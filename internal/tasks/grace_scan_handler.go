package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/makkenzo/device-license-service/internal/domain/license"
	"github.com/makkenzo/device-license-service/internal/metrics"
	"go.uber.org/zap"
)

const graceScanPageSize = 500

// ScanResult counts active licenses by grace state.
type ScanResult map[license.GraceState]int

// LicenseGraceScanHandler walks active licenses and publishes how many are
// valid, in grace, or expired. Expiry is derived from the clock on every
// read, so the scan never writes to the store.
type LicenseGraceScanHandler struct {
	repo   license.Repository
	now    func() time.Time
	logger *zap.Logger
}

func NewLicenseGraceScanHandler(repo license.Repository, now func() time.Time, logger *zap.Logger) *LicenseGraceScanHandler {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &LicenseGraceScanHandler{
		repo:   repo,
		now:    now,
		logger: logger.Named("LicenseGraceScanHandler"),
	}
}

func (h *LicenseGraceScanHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	if t.Type() != TypeLicenseGraceScan {
		return fmt.Errorf("unexpected task type: %s", t.Type())
	}

	var p GraceScanPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		h.logger.Error("Failed to unmarshal payload for grace scan task", zap.Error(err), zap.ByteString("payload", t.Payload()))
		return fmt.Errorf("invalid payload: %v: %w", err, asynq.SkipRetry)
	}

	_, err := h.Scan(ctx)
	return err
}

func (h *LicenseGraceScanHandler) Scan(ctx context.Context) (ScanResult, error) {
	h.logger.Info("Processing license grace scan task...")

	now := h.now()
	active := license.StatusActive
	params := license.ListParams{
		Status: &active,
		Limit:  graceScanPageSize,
	}
	result := ScanResult{
		license.GraceValid:   0,
		license.GraceInGrace: 0,
		license.GraceExpired: 0,
	}

	for {
		page, total, err := h.repo.List(ctx, params)
		if err != nil {
			h.logger.Error("Failed to list active licenses for grace scan", zap.Error(err))
			return nil, fmt.Errorf("repository error listing active licenses: %w", err)
		}

		for _, s := range page {
			state := s.License.GraceState(now)
			result[state]++
			if state == license.GraceInGrace {
				h.logger.Info("License is running on its grace period",
					zap.String("license_id", s.ID.String()),
					zap.String("company_id", s.CompanyID.String()),
					zap.Time("expires_at", s.ExpiresAt),
					zap.Time("grace_ends_at", license.GraceEndsAt(s.ExpiresAt, s.GracePeriodDays)),
				)
			}
		}

		params.Offset += len(page)
		if len(page) < params.Limit || int64(params.Offset) >= total {
			break
		}
	}

	for state, n := range result {
		metrics.LicensesByGraceState.WithLabelValues(string(state)).Set(float64(n))
	}

	h.logger.Info("License grace scan task finished",
		zap.Int("valid", result[license.GraceValid]),
		zap.Int("in_grace", result[license.GraceInGrace]),
		zap.Int("expired", result[license.GraceExpired]),
	)
	return result, nil
}
