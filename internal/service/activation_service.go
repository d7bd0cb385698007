package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/makkenzo/device-license-service/internal/domain/company"
	"github.com/makkenzo/device-license-service/internal/domain/license"
	"github.com/makkenzo/device-license-service/internal/ierr"
	"github.com/makkenzo/device-license-service/internal/metrics"
	"github.com/makkenzo/device-license-service/internal/util"
	"go.uber.org/zap"
)

type ActivateParams struct {
	LicenseKey  string
	Fingerprint string
	MachineName string
	OSInfo      string
	IPAddress   string
}

type ActivationResult struct {
	License         *license.License
	Activation      *license.Activation
	Company         *company.Company
	GraceState      license.GraceState
	DaysUntilExpiry int
	// Outcome is one of metrics.OutcomeActivated, OutcomeReactivated, OutcomeCheckIn.
	Outcome string
}

// ActivationService owns the license state machine: device activation and
// removal, revocation and renewal.
type ActivationService struct {
	repo      license.Repository
	companies company.Repository
	now       Clock
	logger    *zap.Logger
}

func NewActivationService(repo license.Repository, companies company.Repository, clock Clock, logger *zap.Logger) *ActivationService {
	if clock == nil {
		clock = systemClock
	}
	return &ActivationService{
		repo:      repo,
		companies: companies,
		now:       clock,
		logger:    logger.Named("ActivationService"),
	}
}

func (s *ActivationService) Now() time.Time {
	return s.now()
}

func (s *ActivationService) Activate(ctx context.Context, p ActivateParams) (*ActivationResult, error) {
	key := util.NormalizeLicenseKey(p.LicenseKey)
	fingerprint := strings.TrimSpace(p.Fingerprint)

	if !util.IsValidLicenseKey(key) {
		s.logger.Info("Rejected malformed license key")
		metrics.ActivationRequests.WithLabelValues(metrics.OutcomeInvalidKey).Inc()
		return nil, fmt.Errorf("%w: malformed key", ierr.ErrInvalidKey)
	}
	if fingerprint == "" {
		return nil, fmt.Errorf("%w: machine fingerprint is required", ierr.ErrValidation)
	}

	var result *ActivationResult
	err := runTx(ctx, s.repo, s.logger, "activate", func(tx license.Tx) error {
		result = nil
		now := s.now()

		lic, err := tx.LockByKey(ctx, key)
		if err != nil {
			if errors.Is(err, license.ErrNotFound) {
				return fmt.Errorf("%w: key not found", ierr.ErrInvalidKey)
			}
			return err
		}
		if lic.Status == license.StatusRevoked {
			return ierr.ErrLicenseRevoked
		}
		state := lic.GraceState(now)
		if state == license.GraceExpired {
			return fmt.Errorf("%w: expired at %s with %d grace days", ierr.ErrLicenseExpired, lic.ExpiresAt.Format("2006-01-02"), lic.GracePeriodDays)
		}

		owner, err := s.companies.FindByID(ctx, lic.CompanyID)
		if err != nil {
			s.logger.Error("License owner could not be loaded", zap.String("license_id", lic.ID.String()), zap.Error(err))
			if errors.Is(err, company.ErrNotFound) {
				return fmt.Errorf("%w: license %s has no owning company", ierr.ErrInternalServer, lic.ID)
			}
			return err
		}

		act, err := tx.FindActivation(ctx, lic.ID, fingerprint)
		if err != nil && !errors.Is(err, license.ErrActivationNotFound) {
			return err
		}

		outcome := metrics.OutcomeCheckIn
		switch {
		case act != nil && act.IsActive:
			act.LastSeen = now
			mergeMachineInfo(act, p)
			if err := tx.UpdateActivation(ctx, act); err != nil {
				return err
			}

		case act != nil:
			if !lic.HasFreeSlot() {
				return deviceLimitErr(lic)
			}
			act.IsActive = true
			act.DeactivatedAt = sql.NullTime{}
			act.ActivatedAt = now
			act.LastSeen = now
			mergeMachineInfo(act, p)
			if err := tx.UpdateActivation(ctx, act); err != nil {
				return err
			}
			lic.ActivatedDevices++
			outcome = metrics.OutcomeReactivated

		default:
			if !lic.HasFreeSlot() {
				return deviceLimitErr(lic)
			}
			act = &license.Activation{
				LicenseID:          lic.ID,
				MachineFingerprint: fingerprint,
				IsActive:           true,
				ActivatedAt:        now,
				LastSeen:           now,
			}
			mergeMachineInfo(act, p)
			id, err := tx.CreateActivation(ctx, act)
			if err != nil {
				return err
			}
			act.ID = id
			lic.ActivatedDevices++
			outcome = metrics.OutcomeActivated
		}

		lic.LastCheckIn = sql.NullTime{Time: now, Valid: true}
		if err := tx.Update(ctx, lic); err != nil {
			return err
		}

		result = &ActivationResult{
			License:         lic,
			Activation:      act,
			Company:         owner,
			GraceState:      state,
			DaysUntilExpiry: license.DaysUntilExpiry(now, lic.ExpiresAt),
			Outcome:         outcome,
		}
		return nil
	})
	if err != nil {
		metrics.ActivationRequests.WithLabelValues(activationFailureOutcome(err)).Inc()
		if errors.Is(err, ierr.ErrInvalidKey) || errors.Is(err, ierr.ErrLicenseRevoked) ||
			errors.Is(err, ierr.ErrLicenseExpired) || errors.Is(err, ierr.ErrDeviceLimitExceeded) {
			s.logger.Warn("Activation rejected", zap.String("fingerprint", fingerprint), zap.Error(err))
			return nil, err
		}
		s.logger.Error("Activation failed", zap.String("fingerprint", fingerprint), zap.Error(err))
		return nil, err
	}

	metrics.ActivationRequests.WithLabelValues(result.Outcome).Inc()
	s.logger.Info("Activation accepted",
		zap.String("license_id", result.License.ID.String()),
		zap.String("activation_id", result.Activation.ID.String()),
		zap.String("outcome", result.Outcome),
		zap.String("grace_state", string(result.GraceState)),
		zap.Int("activated_devices", result.License.ActivatedDevices),
		zap.Int("max_devices", result.License.MaxDevices),
	)
	return result, nil
}

// DeactivateDevice unbinds one machine. Calling it on an already inactive
// activation changes nothing.
func (s *ActivationService) DeactivateDevice(ctx context.Context, activationID uuid.UUID) (*license.Activation, *license.License, error) {
	var act *license.Activation
	var lic *license.License
	changed := false

	err := runTx(ctx, s.repo, s.logger, "deactivate_device", func(tx license.Tx) error {
		changed = false
		now := s.now()

		probe, err := tx.FindActivationByID(ctx, activationID)
		if err != nil {
			return err
		}
		lic, err = tx.LockByID(ctx, probe.LicenseID)
		if err != nil {
			return err
		}
		// Re-read under the license lock.
		act, err = tx.FindActivationByID(ctx, activationID)
		if err != nil {
			return err
		}
		if !act.IsActive {
			return nil
		}

		act.IsActive = false
		act.DeactivatedAt = sql.NullTime{Time: now, Valid: true}
		if err := tx.UpdateActivation(ctx, act); err != nil {
			return err
		}
		lic.ReleaseSlot()
		if err := tx.Update(ctx, lic); err != nil {
			return err
		}
		changed = true
		return nil
	})
	if err != nil {
		err = mapLicenseErr(err)
		if errors.Is(err, ierr.ErrNotFound) {
			s.logger.Info("Activation not found for deactivation", zap.String("activation_id", activationID.String()))
		} else {
			s.logger.Error("Failed to deactivate device", zap.String("activation_id", activationID.String()), zap.Error(err))
		}
		return nil, nil, err
	}

	if changed {
		metrics.DeviceDeactivations.Inc()
		s.logger.Info("Device deactivated",
			zap.String("activation_id", act.ID.String()),
			zap.String("license_id", lic.ID.String()),
			zap.Int("activated_devices", lic.ActivatedDevices),
		)
	} else {
		s.logger.Debug("Device already inactive", zap.String("activation_id", act.ID.String()))
	}
	return act, lic, nil
}

// Revoke marks the license revoked and deactivates all of its devices in the
// same transaction. It returns the number of devices that were unbound.
func (s *ActivationService) Revoke(ctx context.Context, licenseID uuid.UUID) (*license.License, int64, error) {
	var lic *license.License
	var deactivated int64

	err := runTx(ctx, s.repo, s.logger, "revoke", func(tx license.Tx) error {
		var err error
		lic, err = tx.LockByID(ctx, licenseID)
		if err != nil {
			return err
		}
		deactivated, err = applyRevocation(ctx, tx, lic, s.now())
		return err
	})
	if err != nil {
		err = mapLicenseErr(err)
		s.logger.Error("Failed to revoke license", zap.String("license_id", licenseID.String()), zap.Error(err))
		return nil, 0, err
	}

	metrics.LifecycleEvents.WithLabelValues("revoke").Inc()
	s.logger.Info("License revoked",
		zap.String("license_id", lic.ID.String()),
		zap.Int64("deactivated_devices", deactivated),
	)
	return lic, deactivated, nil
}

// Renew extends the term by months (12 when months <= 0) from the later of
// the current expiry and now, and sets the status back to active. Devices
// unbound by an earlier revocation stay unbound.
func (s *ActivationService) Renew(ctx context.Context, licenseID uuid.UUID, months int) (*license.License, error) {
	var lic *license.License

	err := runTx(ctx, s.repo, s.logger, "renew", func(tx license.Tx) error {
		var err error
		lic, err = tx.LockByID(ctx, licenseID)
		if err != nil {
			return err
		}
		lic.ExpiresAt = license.RenewedExpiry(s.now(), lic.ExpiresAt, months)
		lic.Status = license.StatusActive
		return tx.Update(ctx, lic)
	})
	if err != nil {
		err = mapLicenseErr(err)
		s.logger.Error("Failed to renew license", zap.String("license_id", licenseID.String()), zap.Error(err))
		return nil, err
	}

	metrics.LifecycleEvents.WithLabelValues("renew").Inc()
	s.logger.Info("License renewed",
		zap.String("license_id", lic.ID.String()),
		zap.Time("expires_at", lic.ExpiresAt),
	)
	return lic, nil
}

func mergeMachineInfo(act *license.Activation, p ActivateParams) {
	if v := strings.TrimSpace(p.MachineName); v != "" {
		act.MachineName = sql.NullString{String: v, Valid: true}
	}
	if v := strings.TrimSpace(p.OSInfo); v != "" {
		act.OSInfo = sql.NullString{String: v, Valid: true}
	}
	if v := strings.TrimSpace(p.IPAddress); v != "" {
		act.IPAddress = sql.NullString{String: v, Valid: true}
	}
}

func deviceLimitErr(lic *license.License) error {
	return fmt.Errorf("%w: %d of %d devices in use", ierr.ErrDeviceLimitExceeded, lic.ActivatedDevices, lic.MaxDevices)
}

func activationFailureOutcome(err error) string {
	switch {
	case errors.Is(err, ierr.ErrInvalidKey):
		return metrics.OutcomeInvalidKey
	case errors.Is(err, ierr.ErrLicenseRevoked):
		return metrics.OutcomeRevoked
	case errors.Is(err, ierr.ErrLicenseExpired):
		return metrics.OutcomeExpired
	case errors.Is(err, ierr.ErrDeviceLimitExceeded):
		return metrics.OutcomeLimit
	}
	return metrics.OutcomeError
}
